package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/ironclad/go/internal/countdown"
	"github.com/mcdev12/ironclad/go/internal/verification"
	"github.com/mcdev12/ironclad/go/internal/workout"
	"github.com/rs/zerolog/log"
)

// FlowFactory creates flows over shared storage; coach.App implements it
type FlowFactory interface {
	NewVerificationFlow(ctx context.Context, identity string, onVerified func(identity string)) (*verification.Flow, error)
	NewSessionFlow(sessionID string, initialSeconds int, onCommitted func(sessionID string, seconds int)) (*workout.Flow, error)
	ForgetFlow(flowID uuid.UUID)
	Countdowns() *countdown.Controller
	Clock() clockwork.Clock
}

// Service exposes flows to a UI process over connect RPC and pushes their
// state over websockets.
type Service struct {
	flows   FlowFactory
	hub     *Hub
	upgrade func(w http.ResponseWriter, r *http.Request, flowID uuid.UUID) error

	// pumps outlive the RPC that opened a flow, so they hang off this context
	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	verifications map[uuid.UUID]*verificationEntry
	sessions      map[uuid.UUID]*sessionEntry
}

type verificationEntry struct {
	flow        *verification.Flow
	rearm       []chan struct{}
	unsubscribe func()
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

type sessionEntry struct {
	flow        *workout.Flow
	unsubscribe func()
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

func NewService(flows FlowFactory, hub *Hub) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		flows:         flows,
		hub:           hub,
		upgrade:       hub.Upgrade,
		ctx:           ctx,
		cancel:        cancel,
		verifications: make(map[uuid.UUID]*verificationEntry),
		sessions:      make(map[uuid.UUID]*sessionEntry),
	}
}

// Start runs the websocket hub until ctx is cancelled, then stops every flow.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting coach gateway service")
	go s.hub.Start(ctx)

	<-ctx.Done()
	log.Info().Msg("coach gateway service shutting down")
	return s.Stop()
}

// Stop closes every open flow
func (s *Service) Stop() error {
	s.mu.Lock()
	var vIDs, sIDs []uuid.UUID
	for id := range s.verifications {
		vIDs = append(vIDs, id)
	}
	for id := range s.sessions {
		sIDs = append(sIDs, id)
	}
	s.mu.Unlock()

	for _, id := range vIDs {
		s.closeVerification(id)
	}
	for _, id := range sIDs {
		s.closeSession(id)
	}
	s.cancel()
	log.Info().Msg("coach gateway service stopped")
	return nil
}

// RegisterRoutes registers the RPC procedures and the websocket endpoint
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	opts := connect.WithCodec(jsonCodec{})

	mux.Handle(VerificationOpenProcedure, connect.NewUnaryHandler(VerificationOpenProcedure, s.OpenVerification, opts))
	mux.Handle(VerificationEnterDigitProcedure, connect.NewUnaryHandler(VerificationEnterDigitProcedure, s.EnterDigit, opts))
	mux.Handle(VerificationResendProcedure, connect.NewUnaryHandler(VerificationResendProcedure, s.Resend, opts))
	mux.Handle(VerificationGetProcedure, connect.NewUnaryHandler(VerificationGetProcedure, s.GetVerification, opts))
	mux.Handle(VerificationCloseProcedure, connect.NewUnaryHandler(VerificationCloseProcedure, s.CloseVerification, opts))

	mux.Handle(SessionOpenProcedure, connect.NewUnaryHandler(SessionOpenProcedure, s.OpenSession, opts))
	mux.Handle(SessionStartProcedure, connect.NewUnaryHandler(SessionStartProcedure, s.StartSession, opts))
	mux.Handle(SessionPauseProcedure, connect.NewUnaryHandler(SessionPauseProcedure, s.PauseSession, opts))
	mux.Handle(SessionResumeProcedure, connect.NewUnaryHandler(SessionResumeProcedure, s.ResumeSession, opts))
	mux.Handle(SessionFinishProcedure, connect.NewUnaryHandler(SessionFinishProcedure, s.FinishSession, opts))
	mux.Handle(SessionGetProcedure, connect.NewUnaryHandler(SessionGetProcedure, s.GetSession, opts))
	mux.Handle(SessionCloseProcedure, connect.NewUnaryHandler(SessionCloseProcedure, s.CloseSession, opts))

	mux.HandleFunc("/ws", s.HandleWebSocket)
	log.Info().Msg("coach gateway routes registered")
}

// HandleWebSocket attaches a client to the flow named by the flow_id query parameter
func (s *Service) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	flowID, err := uuid.Parse(r.URL.Query().Get("flow_id"))
	if err != nil {
		http.Error(w, "flow_id is required", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	ventry := s.verifications[flowID]
	sentry := s.sessions[flowID]
	upgrade := s.upgrade
	s.mu.Unlock()
	if ventry == nil && sentry == nil {
		http.Error(w, "flow not found", http.StatusNotFound)
		return
	}

	if err := upgrade(w, r, flowID); err != nil {
		log.Error().Err(err).Str("flow_id", flowID.String()).Msg("failed to upgrade websocket connection")
		return
	}

	// the flow may have been closed while upgrading; its Disconnect ran before we registered
	if !s.hasFlow(flowID) {
		s.hub.Disconnect(flowID)
		return
	}

	// new watchers get the current state without waiting for the next change
	if ventry != nil {
		s.push(flowID, FrameVerification, s.verificationView(ventry.flow.State(), ventry.flow))
	}
	if sentry != nil {
		s.push(flowID, FrameSession, sessionView(sentry.flow.State()))
	}
}

func (s *Service) OpenVerification(ctx context.Context, req *connect.Request[OpenVerificationRequest]) (*connect.Response[VerificationView], error) {
	flow, err := s.flows.NewVerificationFlow(ctx, req.Msg.Identity, nil)
	if err != nil {
		return nil, toConnectError(err)
	}

	pumpCtx, cancel := context.WithCancel(s.ctx)
	entry := &verificationEntry{
		flow:   flow,
		rearm:  []chan struct{}{make(chan struct{}, 1), make(chan struct{}, 1)},
		cancel: cancel,
	}
	entry.unsubscribe = flow.OnChange(func(st verification.State) {
		s.push(flow.ID(), FrameVerification, s.verificationView(st, flow))
	})

	entry.wg.Add(2)
	go s.pumpCountdown(pumpCtx, &entry.wg, flow.ID(), "resend", flow.ResendTimerID(), entry.rearm[0])
	go s.pumpCountdown(pumpCtx, &entry.wg, flow.ID(), "expiry", flow.ExpiryTimerID(), entry.rearm[1])

	s.mu.Lock()
	s.verifications[flow.ID()] = entry
	s.mu.Unlock()

	log.Info().Str("flow_id", flow.ID().String()).Msg("verification flow opened over gateway")
	return connect.NewResponse(s.verificationView(flow.State(), flow)), nil
}

func (s *Service) EnterDigit(ctx context.Context, req *connect.Request[EnterDigitRequest]) (*connect.Response[VerificationView], error) {
	entry, err := s.verification(req.Msg.FlowID)
	if err != nil {
		return nil, toConnectError(err)
	}

	if req.Msg.Code != "" {
		err = entry.flow.EnterCode(ctx, req.Msg.Code)
	} else {
		err = entry.flow.EnterDigit(ctx, req.Msg.Position, req.Msg.Value)
	}
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(s.verificationView(entry.flow.State(), entry.flow)), nil
}

func (s *Service) Resend(ctx context.Context, req *connect.Request[FlowRequest]) (*connect.Response[VerificationView], error) {
	entry, err := s.verification(req.Msg.FlowID)
	if err != nil {
		return nil, toConnectError(err)
	}
	if err := entry.flow.Resend(ctx); err != nil {
		return nil, toConnectError(err)
	}
	for _, ch := range entry.rearm {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return connect.NewResponse(s.verificationView(entry.flow.State(), entry.flow)), nil
}

func (s *Service) GetVerification(_ context.Context, req *connect.Request[FlowRequest]) (*connect.Response[VerificationView], error) {
	entry, err := s.verification(req.Msg.FlowID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(s.verificationView(entry.flow.State(), entry.flow)), nil
}

func (s *Service) CloseVerification(_ context.Context, req *connect.Request[FlowRequest]) (*connect.Response[CloseResponse], error) {
	id, err := parseFlowID(req.Msg.FlowID)
	if err != nil {
		return nil, toConnectError(err)
	}
	if !s.closeVerification(id) {
		return nil, toConnectError(errFlowNotFound)
	}
	return connect.NewResponse(&CloseResponse{}), nil
}

func (s *Service) OpenSession(_ context.Context, req *connect.Request[OpenSessionRequest]) (*connect.Response[SessionView], error) {
	flow, err := s.flows.NewSessionFlow(req.Msg.SessionID, req.Msg.InitialSeconds, nil)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	pumpCtx, cancel := context.WithCancel(s.ctx)
	entry := &sessionEntry{flow: flow, cancel: cancel}
	entry.unsubscribe = flow.OnChange(func(st workout.State) {
		s.push(flow.ID(), FrameSession, sessionView(st))
	})

	entry.wg.Add(1)
	go s.pumpStopwatch(pumpCtx, &entry.wg, flow)

	s.mu.Lock()
	s.sessions[flow.ID()] = entry
	s.mu.Unlock()

	log.Info().
		Str("flow_id", flow.ID().String()).
		Str("session_id", flow.SessionID()).
		Msg("session flow opened over gateway")
	return connect.NewResponse(sessionView(flow.State())), nil
}

func (s *Service) StartSession(_ context.Context, req *connect.Request[FlowRequest]) (*connect.Response[SessionView], error) {
	return s.sessionCall(req.Msg.FlowID, (*workout.Flow).Start)
}

func (s *Service) PauseSession(_ context.Context, req *connect.Request[FlowRequest]) (*connect.Response[SessionView], error) {
	return s.sessionCall(req.Msg.FlowID, (*workout.Flow).Pause)
}

func (s *Service) ResumeSession(_ context.Context, req *connect.Request[FlowRequest]) (*connect.Response[SessionView], error) {
	return s.sessionCall(req.Msg.FlowID, (*workout.Flow).Resume)
}

func (s *Service) FinishSession(ctx context.Context, req *connect.Request[FlowRequest]) (*connect.Response[SessionView], error) {
	return s.sessionCall(req.Msg.FlowID, func(f *workout.Flow) error { return f.Finish(ctx) })
}

func (s *Service) GetSession(_ context.Context, req *connect.Request[FlowRequest]) (*connect.Response[SessionView], error) {
	return s.sessionCall(req.Msg.FlowID, func(*workout.Flow) error { return nil })
}

func (s *Service) CloseSession(_ context.Context, req *connect.Request[FlowRequest]) (*connect.Response[CloseResponse], error) {
	id, err := parseFlowID(req.Msg.FlowID)
	if err != nil {
		return nil, toConnectError(err)
	}
	if !s.closeSession(id) {
		return nil, toConnectError(errFlowNotFound)
	}
	return connect.NewResponse(&CloseResponse{}), nil
}

func (s *Service) sessionCall(rawID string, fn func(*workout.Flow) error) (*connect.Response[SessionView], error) {
	id, err := parseFlowID(rawID)
	if err != nil {
		return nil, toConnectError(err)
	}
	s.mu.Lock()
	entry := s.sessions[id]
	s.mu.Unlock()
	if entry == nil {
		return nil, toConnectError(errFlowNotFound)
	}

	if err := fn(entry.flow); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(sessionView(entry.flow.State())), nil
}

func (s *Service) verification(rawID string) (*verificationEntry, error) {
	id, err := parseFlowID(rawID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.verifications[id]
	if entry == nil {
		return nil, errFlowNotFound
	}
	return entry, nil
}

func (s *Service) hasFlow(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.verifications[id] != nil || s.sessions[id] != nil
}

func (s *Service) closeVerification(id uuid.UUID) bool {
	s.mu.Lock()
	entry := s.verifications[id]
	delete(s.verifications, id)
	s.mu.Unlock()
	if entry == nil {
		return false
	}

	entry.unsubscribe()
	entry.cancel()
	entry.wg.Wait()
	entry.flow.Close()
	s.flows.ForgetFlow(id)
	s.hub.Disconnect(id)
	return true
}

func (s *Service) closeSession(id uuid.UUID) bool {
	s.mu.Lock()
	entry := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if entry == nil {
		return false
	}

	entry.unsubscribe()
	entry.cancel()
	entry.wg.Wait()
	entry.flow.Close()
	s.flows.ForgetFlow(id)
	s.hub.Disconnect(id)
	return true
}

// pumpCountdown pushes countdown frames for timerID. When the countdown elapses
// it waits for rearm, which a successful resend sends after resetting the anchor.
func (s *Service) pumpCountdown(ctx context.Context, wg *sync.WaitGroup, flowID uuid.UUID, timer, timerID string, rearm <-chan struct{}) {
	defer wg.Done()

	for {
		a := s.flows.Countdowns().Attach(ctx, timerID)
		for st := range a.C {
			s.push(flowID, FrameCountdown, CountdownPayload{
				Timer:            timer,
				TimerID:          timerID,
				RemainingSeconds: st.RemainingSeconds,
				Elapsed:          st.Elapsed,
			})
		}
		a.Detach()

		select {
		case <-ctx.Done():
			return
		case <-rearm:
		}
	}
}

// pumpStopwatch pushes the running total once a second while the session runs
func (s *Service) pumpStopwatch(ctx context.Context, wg *sync.WaitGroup, flow *workout.Flow) {
	defer wg.Done()

	ticker := s.flows.Clock().NewTicker(countdown.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			st := flow.State()
			switch st.Status {
			case workout.StatusRunning:
				s.push(flow.ID(), FrameSession, sessionView(st))
			case workout.StatusCommitted:
				return
			}
		}
	}
}

func (s *Service) push(flowID uuid.UUID, frameType FrameType, data any) {
	frame, err := newFrame(flowID, frameType, s.flows.Clock().Now(), data)
	if err != nil {
		log.Error().Err(err).Str("flow_id", flowID.String()).Msg("failed to build frame")
		return
	}
	s.hub.Broadcast(flowID, frame)
}

func (s *Service) verificationView(st verification.State, flow *verification.Flow) *VerificationView {
	resend := flow.ResendCountdown(s.ctx)
	expiry := flow.ExpiryCountdown(s.ctx)
	return &VerificationView{
		FlowID:    st.FlowID.String(),
		Identity:  st.Identity,
		Status:    string(st.Status),
		Digits:    st.Digits,
		Focus:     st.Focus,
		LastError: st.LastError,
		Resend:    CountdownView{RemainingSeconds: resend.RemainingSeconds, Elapsed: resend.Elapsed},
		Expiry:    CountdownView{RemainingSeconds: expiry.RemainingSeconds, Elapsed: expiry.Elapsed},
	}
}

func sessionView(st workout.State) *SessionView {
	return &SessionView{
		FlowID:       st.FlowID.String(),
		SessionID:    st.SessionID,
		Status:       string(st.Status),
		TotalSeconds: st.TotalSeconds,
		LastError:    st.LastError,
	}
}

func parseFlowID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %q", errBadFlowID, raw)
	}
	return id, nil
}
