package gateway

const (
	VerificationServiceName = "ironclad.coach.v1.VerificationService"
	SessionServiceName      = "ironclad.coach.v1.SessionService"
)

const (
	VerificationOpenProcedure       = "/" + VerificationServiceName + "/Open"
	VerificationEnterDigitProcedure = "/" + VerificationServiceName + "/EnterDigit"
	VerificationResendProcedure     = "/" + VerificationServiceName + "/Resend"
	VerificationGetProcedure        = "/" + VerificationServiceName + "/Get"
	VerificationCloseProcedure      = "/" + VerificationServiceName + "/Close"

	SessionOpenProcedure   = "/" + SessionServiceName + "/Open"
	SessionStartProcedure  = "/" + SessionServiceName + "/Start"
	SessionPauseProcedure  = "/" + SessionServiceName + "/Pause"
	SessionResumeProcedure = "/" + SessionServiceName + "/Resume"
	SessionFinishProcedure = "/" + SessionServiceName + "/Finish"
	SessionGetProcedure    = "/" + SessionServiceName + "/Get"
	SessionCloseProcedure  = "/" + SessionServiceName + "/Close"
)

type OpenVerificationRequest struct {
	// Identity may be empty to resume the pending identity
	Identity string `json:"identity"`
}

type FlowRequest struct {
	FlowID string `json:"flow_id"`
}

type EnterDigitRequest struct {
	FlowID   string `json:"flow_id"`
	Position int    `json:"position"`
	Value    string `json:"value"`
	// Code, when set, is entered as a paste and Position/Value are ignored
	Code string `json:"code,omitempty"`
}

type CountdownView struct {
	RemainingSeconds int  `json:"remaining_seconds"`
	Elapsed          bool `json:"elapsed"`
}

type VerificationView struct {
	FlowID    string        `json:"flow_id"`
	Identity  string        `json:"identity"`
	Status    string        `json:"status"`
	Digits    []string      `json:"digits"`
	Focus     int           `json:"focus"`
	LastError string        `json:"last_error,omitempty"`
	Resend    CountdownView `json:"resend"`
	Expiry    CountdownView `json:"expiry"`
}

type OpenSessionRequest struct {
	SessionID      string `json:"session_id"`
	InitialSeconds int    `json:"initial_seconds"`
}

type SessionView struct {
	FlowID       string `json:"flow_id"`
	SessionID    string `json:"session_id"`
	Status       string `json:"status"`
	TotalSeconds int    `json:"total_seconds"`
	LastError    string `json:"last_error,omitempty"`
}

type CloseResponse struct{}
