package api

import (
	"team_server/server/common/transport/httpresp"

	"team_server/server/realtime/domain"
	"team_server/server/realtime/service"
)

type ErrorResponse = httpresp.ErrorResponse
type OKResponse = httpresp.OKResponse

type HealthResponse struct {
	Status string `json:"status"`
}

// CallResponse is returned by every call endpoint; on a 409 Conflict
// the conflicting live call rides along so clients can reconcile.
type CallResponse struct {
	Call domain.Call `json:"call"`
}

type CallConflictResponse struct {
	Error string      `json:"error"`
	Call  domain.Call `json:"call"`
}

type CleanupResponse struct {
	CallsEnded          int `json:"calls_ended"`
	ParticipantsRemoved int `json:"participants_removed"`
}

func NewErrorResponse(message string) ErrorResponse {
	return httpresp.NewErrorResponse(message)
}

func NewOKResponse() OKResponse {
	return httpresp.NewOKResponse()
}

func NewHealthResponse(status string) HealthResponse {
	return HealthResponse{Status: status}
}

func NewCallResponse(call domain.Call) CallResponse {
	return CallResponse{Call: call}
}

func NewCallConflictResponse(message string, call domain.Call) CallConflictResponse {
	return CallConflictResponse{Error: message, Call: call}
}

func NewCleanupResponse(report service.CleanupReport) CleanupResponse {
	return CleanupResponse{CallsEnded: report.CallsEnded, ParticipantsRemoved: report.ParticipantsRemoved}
}
