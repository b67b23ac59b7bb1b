package gateway

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
)

// Client calls the gateway procedures from Go
type Client struct {
	openVerification  *connect.Client[OpenVerificationRequest, VerificationView]
	enterDigit        *connect.Client[EnterDigitRequest, VerificationView]
	resend            *connect.Client[FlowRequest, VerificationView]
	getVerification   *connect.Client[FlowRequest, VerificationView]
	closeVerification *connect.Client[FlowRequest, CloseResponse]

	openSession   *connect.Client[OpenSessionRequest, SessionView]
	startSession  *connect.Client[FlowRequest, SessionView]
	pauseSession  *connect.Client[FlowRequest, SessionView]
	resumeSession *connect.Client[FlowRequest, SessionView]
	finishSession *connect.Client[FlowRequest, SessionView]
	getSession    *connect.Client[FlowRequest, SessionView]
	closeSession  *connect.Client[FlowRequest, CloseResponse]
}

func NewClient(httpClient connect.HTTPClient, baseURL string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	baseURL = strings.TrimRight(baseURL, "/")
	opts := connect.WithCodec(jsonCodec{})

	return &Client{
		openVerification:  connect.NewClient[OpenVerificationRequest, VerificationView](httpClient, baseURL+VerificationOpenProcedure, opts),
		enterDigit:        connect.NewClient[EnterDigitRequest, VerificationView](httpClient, baseURL+VerificationEnterDigitProcedure, opts),
		resend:            connect.NewClient[FlowRequest, VerificationView](httpClient, baseURL+VerificationResendProcedure, opts),
		getVerification:   connect.NewClient[FlowRequest, VerificationView](httpClient, baseURL+VerificationGetProcedure, opts),
		closeVerification: connect.NewClient[FlowRequest, CloseResponse](httpClient, baseURL+VerificationCloseProcedure, opts),

		openSession:   connect.NewClient[OpenSessionRequest, SessionView](httpClient, baseURL+SessionOpenProcedure, opts),
		startSession:  connect.NewClient[FlowRequest, SessionView](httpClient, baseURL+SessionStartProcedure, opts),
		pauseSession:  connect.NewClient[FlowRequest, SessionView](httpClient, baseURL+SessionPauseProcedure, opts),
		resumeSession: connect.NewClient[FlowRequest, SessionView](httpClient, baseURL+SessionResumeProcedure, opts),
		finishSession: connect.NewClient[FlowRequest, SessionView](httpClient, baseURL+SessionFinishProcedure, opts),
		getSession:    connect.NewClient[FlowRequest, SessionView](httpClient, baseURL+SessionGetProcedure, opts),
		closeSession:  connect.NewClient[FlowRequest, CloseResponse](httpClient, baseURL+SessionCloseProcedure, opts),
	}
}

func call[Req, Res any](ctx context.Context, c *connect.Client[Req, Res], msg *Req) (*Res, error) {
	resp, err := c.CallUnary(ctx, connect.NewRequest(msg))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) OpenVerification(ctx context.Context, identity string) (*VerificationView, error) {
	return call(ctx, c.openVerification, &OpenVerificationRequest{Identity: identity})
}

func (c *Client) EnterDigit(ctx context.Context, flowID string, position int, value string) (*VerificationView, error) {
	return call(ctx, c.enterDigit, &EnterDigitRequest{FlowID: flowID, Position: position, Value: value})
}

func (c *Client) EnterCode(ctx context.Context, flowID, code string) (*VerificationView, error) {
	return call(ctx, c.enterDigit, &EnterDigitRequest{FlowID: flowID, Code: code})
}

func (c *Client) Resend(ctx context.Context, flowID string) (*VerificationView, error) {
	return call(ctx, c.resend, &FlowRequest{FlowID: flowID})
}

func (c *Client) GetVerification(ctx context.Context, flowID string) (*VerificationView, error) {
	return call(ctx, c.getVerification, &FlowRequest{FlowID: flowID})
}

func (c *Client) CloseVerification(ctx context.Context, flowID string) error {
	_, err := call(ctx, c.closeVerification, &FlowRequest{FlowID: flowID})
	return err
}

func (c *Client) OpenSession(ctx context.Context, sessionID string, initialSeconds int) (*SessionView, error) {
	return call(ctx, c.openSession, &OpenSessionRequest{SessionID: sessionID, InitialSeconds: initialSeconds})
}

func (c *Client) StartSession(ctx context.Context, flowID string) (*SessionView, error) {
	return call(ctx, c.startSession, &FlowRequest{FlowID: flowID})
}

func (c *Client) PauseSession(ctx context.Context, flowID string) (*SessionView, error) {
	return call(ctx, c.pauseSession, &FlowRequest{FlowID: flowID})
}

func (c *Client) ResumeSession(ctx context.Context, flowID string) (*SessionView, error) {
	return call(ctx, c.resumeSession, &FlowRequest{FlowID: flowID})
}

func (c *Client) FinishSession(ctx context.Context, flowID string) (*SessionView, error) {
	return call(ctx, c.finishSession, &FlowRequest{FlowID: flowID})
}

func (c *Client) GetSession(ctx context.Context, flowID string) (*SessionView, error) {
	return call(ctx, c.getSession, &FlowRequest{FlowID: flowID})
}

func (c *Client) CloseSession(ctx context.Context, flowID string) error {
	_, err := call(ctx, c.closeSession, &FlowRequest{FlowID: flowID})
	return err
}
