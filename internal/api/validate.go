package api

import (
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type fixRequest struct {
	Latitude         *float64 `json:"latitude" validate:"required_without=Error"`
	Longitude        *float64 `json:"longitude" validate:"required_without=Error"`
	Accuracy         *float64 `json:"accuracy" validate:"omitempty,gte=0"`
	Altitude         *float64 `json:"altitude"`
	AltitudeAccuracy *float64 `json:"altitudeAccuracy" validate:"omitempty,gte=0"`
	Timestamp        *int64   `json:"timestamp"`
	Error            *struct {
		Code    string `json:"code" validate:"oneof=PERMISSION_DENIED POSITION_UNAVAILABLE TIMEOUT UNSUPPORTED"`
		Message string `json:"message"`
	} `json:"error"`
}

type startRequest struct {
	JobID                   string         `json:"jobId" validate:"required"`
	PropertyID              string         `json:"propertyId" validate:"required"`
	EstimatedDistanceMeters *float64       `json:"estimatedDistanceMeters" validate:"omitempty,gte=0"`
	RoutePolyline           string         `json:"routePolyline"`
	Metadata                map[string]any `json:"metadata"`
}

type stopRequest struct {
	Metadata map[string]any `json:"metadata"`
}

type targetRequest struct {
	JobID     string   `json:"jobId" validate:"required"`
	Latitude  *float64 `json:"latitude" validate:"required"`
	Longitude *float64 `json:"longitude" validate:"required"`
}

type idsRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,dive,required"`
}

type decodeRequest struct {
	Polyline  string `json:"polyline" validate:"required"`
	Precision int    `json:"precision" validate:"omitempty,min=1,max=10"`
}

type encodeRequest struct {
	Points    []pointRequest `json:"points" validate:"required,min=1,dive"`
	Precision int            `json:"precision" validate:"omitempty,min=1,max=10"`
}

type pointRequest struct {
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`
}
