package goOTP

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/goOTP/clock"
	"github.com/MrEthical07/goOTP/internal"
	"github.com/MrEthical07/goOTP/jwt"
	"github.com/MrEthical07/goOTP/mockapi"
	"github.com/MrEthical07/goOTP/session"
)

// Flow is the sign-in controller of one client scope.
//
// Operations are serialized: a call made while another is in flight returns
// [ErrRequestInFlight] without side effects. Reads (State, Challenge,
// IsAuthenticated) never block on an in-flight operation.
type Flow struct {
	engine *Engine
	scope  string

	busy atomic.Bool

	mu        sync.Mutex
	state     State
	challenge *challenge
	refresh   clock.Timer
	closed    bool
	lastUsed  time.Time
}

func newFlow(e *Engine, scope string) *Flow {
	return &Flow{
		engine:   e,
		scope:    scope,
		lastUsed: e.clock.Now(),
	}
}

// Scope returns the client scope the flow controls.
func (f *Flow) Scope() string {
	return f.scope
}

// State returns the current lifecycle state.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Challenge returns a snapshot of the outstanding challenge, if any.
func (f *Flow) Challenge() (Challenge, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.challenge == nil {
		return Challenge{}, false
	}
	return f.challenge.snapshot(), true
}

// IsAuthenticated reports whether a session is stored for the scope.
func (f *Flow) IsAuthenticated(ctx context.Context) bool {
	return f.engine.store.HasSession(ctx, f.scope)
}

// Close stops the flow's timers and removes it from the engine registry.
// An in-flight backend request is not cancelled.
func (f *Flow) Close() {
	f.shutdown()
	f.engine.detach(f)
}

func (f *Flow) shutdown() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.dropChallengeLocked()
	f.stopRefreshLocked()
}

func (f *Flow) idleSince() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastUsed
}

// enter claims the flow for one operation. touch marks caller activity for
// idle eviction.
func (f *Flow) enter(touch bool) (func(), error) {
	if !f.busy.CompareAndSwap(false, true) {
		f.engine.metrics.Inc(MetricRequestInFlight)
		return nil, ErrRequestInFlight
	}

	f.mu.Lock()
	closed := f.closed
	if touch {
		f.lastUsed = f.engine.clock.Now()
	}
	f.mu.Unlock()

	if closed {
		f.busy.Store(false)
		return nil, ErrFlowClosed
	}
	return func() { f.busy.Store(false) }, nil
}

/*
====================================
ONE-TIME CODE CHALLENGE
====================================
*/

// RequestChallenge asks the backend to send a code to email, stores email
// in the handoff slot and starts a challenge with a full attempt budget and
// resend cooldown. A malformed email returns [ErrInvalidInput] and changes
// nothing. While a session is stored it returns [ErrAlreadyAuthenticated].
func (f *Flow) RequestChallenge(ctx context.Context, email string) error {
	release, err := f.enter(true)
	if err != nil {
		return err
	}
	defer release()

	e := f.engine
	email = strings.TrimSpace(email)
	if !validEmail(email) {
		e.metrics.Inc(MetricChallengeRequestFailed)
		e.emitAudit(ctx, AuditChallengeRequest, f.scope, false, ErrInvalidInput, nil)
		return ErrInvalidInput
	}
	if e.store.HasSession(ctx, f.scope) {
		e.metrics.Inc(MetricChallengeRequestFailed)
		e.emitAudit(ctx, AuditChallengeRequest, f.scope, false, ErrAlreadyAuthenticated, nil)
		return ErrAlreadyAuthenticated
	}

	if err := e.backend.RequestOTP(ctx, email, ClientIPFromContext(ctx)); err != nil {
		err = mapBackendError(err)
		e.metrics.Inc(MetricChallengeRequestFailed)
		e.emitAudit(ctx, AuditChallengeRequest, f.scope, false, err, nil)
		e.logger.WarnContext(ctx, "challenge request failed", "scope", f.scope, "error", err)
		return err
	}
	if err := e.store.SetPending(ctx, f.scope, email); err != nil {
		return e.storageFailure(ctx, "SetPending", err)
	}

	f.mu.Lock()
	f.dropChallengeLocked()
	f.challenge = f.newChallengeLocked(email)
	f.state = StateOtpRequested
	f.mu.Unlock()

	e.metrics.Inc(MetricChallengeRequested)
	e.emitAudit(ctx, AuditChallengeRequest, f.scope, true, nil, nil)
	e.logger.DebugContext(ctx, "challenge requested", "scope", f.scope)
	return nil
}

// VerifyChallenge submits code for the outstanding challenge. email may be
// empty to use the pending address; a different address is rejected.
//
// Without a live challenge the pending email is recovered from the handoff
// slot; if there is none the call fails closed with
// [ErrNoPendingCredential]. A wrong code consumes one attempt and returns
// [ErrInvalidCode]; once attempts reach zero every further call returns
// [ErrAttemptsExhausted] until a new RequestChallenge.
func (f *Flow) VerifyChallenge(ctx context.Context, email, code string) (*session.Session, error) {
	release, err := f.enter(true)
	if err != nil {
		return nil, err
	}
	defer release()

	e := f.engine
	start := e.clock.Now()

	ch, err := f.currentChallenge(ctx)
	if err != nil {
		e.emitAudit(ctx, AuditChallengeVerify, f.scope, false, err, nil)
		return nil, err
	}

	code = strings.TrimSpace(code)
	f.mu.Lock()
	switch {
	case ch.attempts <= 0:
		f.mu.Unlock()
		e.metrics.Inc(MetricChallengeExhausted)
		e.emitAudit(ctx, AuditChallengeVerify, f.scope, false, ErrAttemptsExhausted, nil)
		return nil, ErrAttemptsExhausted
	case !ch.matches(email), !internal.IsNumericCode(code, e.config.Challenge.CodeLength):
		f.mu.Unlock()
		e.emitAudit(ctx, AuditChallengeVerify, f.scope, false, ErrInvalidInput, nil)
		return nil, ErrInvalidInput
	}
	target := ch.email
	f.state = StateVerifying
	f.mu.Unlock()

	grant, err := e.backend.VerifyOTP(ctx, target, code, DeviceFromContext(ctx))
	e.metrics.Observe(MetricVerifyLatency, e.clock.Now().Sub(start))
	if err != nil {
		return nil, f.verifyFailed(ctx, ch, mapBackendError(err))
	}

	sess := sessionFromGrant(grant)
	if err := f.establish(ctx, sess, StateOtpRequested); err != nil {
		return nil, err
	}

	e.metrics.Inc(MetricChallengeVerified)
	e.emitAudit(ctx, AuditChallengeVerify, f.scope, true, nil, sessionMetadata(sess))
	e.logger.DebugContext(ctx, "challenge verified", "scope", f.scope, "session_id", sess.ID)
	return sess, nil
}

// VerifyChallengeResult is VerifyChallenge folded into a [Result].
func (f *Flow) VerifyChallengeResult(ctx context.Context, email, code string) Result {
	return ResultOf(f.VerifyChallenge(ctx, email, code))
}

func (f *Flow) verifyFailed(ctx context.Context, ch *challenge, err error) error {
	e := f.engine

	f.mu.Lock()
	if f.challenge == ch {
		f.state = StateOtpRequested
	}
	switch {
	case errors.Is(err, ErrInvalidCode):
		ch.attempts--
		if ch.attempts < 0 {
			ch.attempts = 0
		}
	case errors.Is(err, ErrAttemptsExhausted):
		ch.attempts = 0
	}
	exhausted := ch.attempts == 0
	remaining := ch.attempts
	f.mu.Unlock()

	switch {
	case exhausted:
		e.metrics.Inc(MetricChallengeExhausted)
		// The handoff slot goes too, so a reload cannot restore a fresh budget.
		if cerr := e.store.ClearPending(ctx, f.scope); cerr != nil {
			e.logger.WarnContext(ctx, "clear pending credential failed", "scope", f.scope, "error", cerr)
		}
	case errors.Is(err, ErrInvalidCode):
		e.metrics.Inc(MetricChallengeInvalidCode)
	case errors.Is(err, ErrBackendUnavailable):
		e.metrics.Inc(MetricBackendUnavailable)
	}

	e.emitAudit(ctx, AuditChallengeVerify, f.scope, false, err, map[string]string{
		"attempts_remaining": strconv.Itoa(remaining),
	})
	return err
}

// ResendChallenge re-issues the code once the cooldown has elapsed and
// restarts the cooldown. Inside the cooldown it does nothing and returns
// [ErrCooldownActive]. The attempt budget is neither consumed nor reset.
func (f *Flow) ResendChallenge(ctx context.Context) error {
	release, err := f.enter(true)
	if err != nil {
		return err
	}
	defer release()

	e := f.engine
	ch, err := f.currentChallenge(ctx)
	if err != nil {
		return err
	}

	f.mu.Lock()
	switch {
	case ch.attempts <= 0:
		f.mu.Unlock()
		return ErrAttemptsExhausted
	case ch.cooldown > 0:
		f.mu.Unlock()
		e.metrics.Inc(MetricCooldownRejected)
		e.emitAudit(ctx, AuditChallengeResend, f.scope, false, ErrCooldownActive, nil)
		return ErrCooldownActive
	}
	email := ch.email
	f.mu.Unlock()

	if err := e.backend.RequestOTP(ctx, email, ClientIPFromContext(ctx)); err != nil {
		err = mapBackendError(err)
		e.emitAudit(ctx, AuditChallengeResend, f.scope, false, err, nil)
		return err
	}

	f.mu.Lock()
	if f.challenge == ch {
		ch.issuedAt = e.clock.Now()
		f.startCountdownLocked(ch)
	}
	f.mu.Unlock()

	if err := e.store.SetPending(ctx, f.scope, email); err != nil {
		e.logger.WarnContext(ctx, "refresh pending credential failed", "scope", f.scope, "error", err)
	}

	e.metrics.Inc(MetricChallengeResent)
	e.emitAudit(ctx, AuditChallengeResend, f.scope, true, nil, nil)
	return nil
}

// currentChallenge returns the live challenge, recovering it from the
// handoff slot when the flow has none.
func (f *Flow) currentChallenge(ctx context.Context) (*challenge, error) {
	f.mu.Lock()
	ch := f.challenge
	f.mu.Unlock()
	if ch != nil {
		return ch, nil
	}

	email, err := f.engine.store.Pending(ctx, f.scope)
	if err != nil {
		if errors.Is(err, session.ErrNoPending) {
			return nil, ErrNoPendingCredential
		}
		return nil, f.engine.storageFailure(ctx, "Pending", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.challenge == nil {
		f.challenge = f.newChallengeLocked(email)
		f.state = StateOtpRequested
	}
	return f.challenge, nil
}

func (f *Flow) newChallengeLocked(email string) *challenge {
	ch := &challenge{
		email:    email,
		issuedAt: f.engine.clock.Now(),
		attempts: f.engine.config.Challenge.MaxAttempts,
	}
	f.startCountdownLocked(ch)
	return ch
}

func (f *Flow) startCountdownLocked(ch *challenge) {
	ch.stopCountdown()
	ch.cooldown = int(f.engine.config.Challenge.ResendCooldown / time.Second)
	if ch.cooldown > 0 && !f.closed {
		ch.countdown = f.engine.clock.AfterFunc(time.Second, func() { f.tick(ch) })
	}
}

// tick advances the resend countdown by one second.
func (f *Flow) tick(ch *challenge) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || f.challenge != ch || ch.cooldown <= 0 {
		return
	}
	ch.cooldown--
	if ch.cooldown > 0 {
		ch.countdown = f.engine.clock.AfterFunc(time.Second, func() { f.tick(ch) })
	} else {
		ch.countdown = nil
	}
}

func (f *Flow) dropChallengeLocked() {
	if f.challenge != nil {
		f.challenge.stopCountdown()
		f.challenge = nil
	}
}

/*
====================================
PASSWORD ENTRY POINT / REGISTRATION
====================================
*/

// LoginWithPassword signs in with an email and password. It produces the
// same session shape as the code challenge.
func (f *Flow) LoginWithPassword(ctx context.Context, email, password string) (*session.Session, error) {
	release, err := f.enter(true)
	if err != nil {
		return nil, err
	}
	defer release()

	e := f.engine
	email = strings.TrimSpace(email)
	if !validEmail(email) || password == "" {
		e.emitAudit(ctx, AuditPasswordLogin, f.scope, false, ErrInvalidInput, nil)
		return nil, ErrInvalidInput
	}

	grant, err := e.backend.Login(ctx, email, password, DeviceFromContext(ctx))
	if err != nil {
		err = mapBackendError(err)
		e.metrics.Inc(MetricPasswordLoginFailure)
		e.emitAudit(ctx, AuditPasswordLogin, f.scope, false, err, nil)
		return nil, err
	}

	sess := sessionFromGrant(grant)
	if err := f.establish(ctx, sess, f.State()); err != nil {
		return nil, err
	}
	e.metrics.Inc(MetricPasswordLoginSuccess)
	e.emitAudit(ctx, AuditPasswordLogin, f.scope, true, nil, sessionMetadata(sess))
	return sess, nil
}

// Register creates a password account. The flow stays where it was; the
// caller signs in afterwards.
func (f *Flow) Register(ctx context.Context, reg session.Registration) (session.User, error) {
	release, err := f.enter(true)
	if err != nil {
		return session.User{}, err
	}
	defer release()

	e := f.engine
	reg.Name = strings.TrimSpace(reg.Name)
	reg.Email = strings.TrimSpace(reg.Email)
	if err := validateRegistration(reg); err != nil {
		e.emitAudit(ctx, AuditRegistration, f.scope, false, err, nil)
		return session.User{}, err
	}

	user, err := e.backend.Register(ctx, reg)
	if err != nil {
		err = mapBackendError(err)
		if errors.Is(err, ErrAccountExists) {
			e.metrics.Inc(MetricRegistrationDuplicate)
		}
		e.emitAudit(ctx, AuditRegistration, f.scope, false, err, nil)
		return session.User{}, err
	}

	e.metrics.Inc(MetricRegistrationSuccess)
	e.emitAudit(ctx, AuditRegistration, f.scope, true, nil, map[string]string{"user_id": user.ID})
	return user, nil
}

/*
====================================
SESSION LIFECYCLE
====================================
*/

// Logout revokes the session remotely (best effort), destroys the stored
// session and pending credential, and signs out of every federated
// provider.
func (f *Flow) Logout(ctx context.Context) error {
	release, err := f.enter(true)
	if err != nil {
		return err
	}
	defer release()

	e := f.engine
	var metadata map[string]string
	sess, err := e.store.Load(ctx, f.scope)
	switch {
	case err == nil:
		hydrate(sess)
		metadata = sessionMetadata(sess)
		if lerr := e.backend.Logout(ctx, sess.Token); lerr != nil {
			e.logger.DebugContext(ctx, "remote logout failed", "scope", f.scope, "error", lerr)
		}
	case !errors.Is(err, session.ErrNoSession):
		e.logger.WarnContext(ctx, "load session for logout failed", "scope", f.scope, "error", err)
	}

	if err := e.store.Clear(ctx, f.scope); err != nil {
		return e.storageFailure(ctx, "Clear", err)
	}
	if err := e.store.ClearPending(ctx, f.scope); err != nil {
		return e.storageFailure(ctx, "ClearPending", err)
	}
	for _, p := range e.federated {
		if perr := p.SignOut(ctx, f.scope); perr != nil {
			e.logger.WarnContext(ctx, "federated sign-out failed", "scope", f.scope, "provider", p.Name(), "error", perr)
		}
	}

	f.mu.Lock()
	f.dropChallengeLocked()
	f.stopRefreshLocked()
	f.state = StateUnauthenticated
	f.mu.Unlock()

	e.metrics.Inc(MetricLogout)
	e.emitAudit(ctx, AuditLogout, f.scope, true, nil, metadata)
	return nil
}

// Refresh exchanges the stored token for a new one. A rejected token is
// treated as detected expiry: the session is cleared and
// [ErrSessionExpired] returned.
func (f *Flow) Refresh(ctx context.Context) (*session.Session, error) {
	release, err := f.enter(true)
	if err != nil {
		return nil, err
	}
	defer release()
	return f.refreshSession(ctx)
}

func (f *Flow) refreshSession(ctx context.Context) (*session.Session, error) {
	e := f.engine
	sess, err := f.currentSession(ctx)
	if err != nil {
		return nil, err
	}

	grant, err := e.backend.Refresh(ctx, sess.Token)
	if err != nil {
		e.metrics.Inc(MetricRefreshFailure)
		err = f.backendFailure(ctx, err)
		e.emitAudit(ctx, AuditRefresh, f.scope, false, err, sessionMetadata(sess))
		return nil, err
	}

	next := sessionFromGrant(grant)
	if err := f.renew(ctx, next); err != nil {
		return nil, err
	}
	e.metrics.Inc(MetricRefreshSuccess)
	e.emitAudit(ctx, AuditRefresh, f.scope, true, nil, sessionMetadata(next))
	return next, nil
}

// Session returns the stored session, with ID and expiry read from the
// token. An expired token is cleared and reported as [ErrSessionExpired].
func (f *Flow) Session(ctx context.Context) (*session.Session, error) {
	release, err := f.enter(true)
	if err != nil {
		return nil, err
	}
	defer release()
	return f.currentSession(ctx)
}

func (f *Flow) currentSession(ctx context.Context) (*session.Session, error) {
	e := f.engine
	sess, err := e.store.Load(ctx, f.scope)
	if err != nil {
		if errors.Is(err, session.ErrNoSession) {
			f.mu.Lock()
			if f.state == StateAuthenticated {
				f.state = StateUnauthenticated
				f.stopRefreshLocked()
			}
			f.mu.Unlock()
			return nil, ErrNotAuthenticated
		}
		return nil, e.storageFailure(ctx, "Load", err)
	}

	hydrate(sess)
	if !e.clock.Now().Before(sess.ExpiresAt) {
		f.expire(ctx, sess)
		return nil, ErrSessionExpired
	}
	return sess, nil
}

// establish persists sess as the scope's session and moves to
// Authenticated. On storage failure the flow returns to prior.
func (f *Flow) establish(ctx context.Context, sess *session.Session, prior State) error {
	e := f.engine
	if err := e.store.Save(ctx, f.scope, sess); err != nil {
		f.mu.Lock()
		f.state = prior
		f.mu.Unlock()
		return e.storageFailure(ctx, "Save", err)
	}
	if err := e.store.ClearPending(ctx, f.scope); err != nil {
		e.logger.WarnContext(ctx, "clear pending credential failed", "scope", f.scope, "error", err)
	}

	f.mu.Lock()
	f.dropChallengeLocked()
	f.state = StateAuthenticated
	f.scheduleRefreshLocked(sess.ExpiresAt)
	f.mu.Unlock()
	return nil
}

// renew stores a refreshed token for the current session and re-arms the
// refresh timer. The challenge and handoff slot are left alone.
func (f *Flow) renew(ctx context.Context, sess *session.Session) error {
	if err := f.engine.store.Save(ctx, f.scope, sess); err != nil {
		return f.engine.storageFailure(ctx, "Save", err)
	}
	f.mu.Lock()
	f.scheduleRefreshLocked(sess.ExpiresAt)
	f.mu.Unlock()
	return nil
}

// expire clears a session found dead locally or rejected remotely.
func (f *Flow) expire(ctx context.Context, sess *session.Session) {
	e := f.engine
	if err := e.store.Clear(ctx, f.scope); err != nil {
		e.logger.WarnContext(ctx, "clear expired session failed", "scope", f.scope, "error", err)
	}

	f.mu.Lock()
	f.stopRefreshLocked()
	if f.state == StateAuthenticated {
		f.state = StateUnauthenticated
	}
	f.mu.Unlock()

	e.metrics.Inc(MetricSessionExpired)
	e.emitAudit(ctx, AuditSessionExpired, f.scope, true, nil, sessionMetadata(sess))
	e.logger.DebugContext(ctx, "session expired", "scope", f.scope)
}

// backendFailure maps err and clears the session when the backend no
// longer accepts the token.
func (f *Flow) backendFailure(ctx context.Context, err error) error {
	mapped := mapBackendError(err)
	switch {
	case errors.Is(mapped, errAuthLost):
		sess, lerr := f.engine.store.Load(ctx, f.scope)
		if lerr == nil {
			hydrate(sess)
		}
		f.expire(ctx, sess)
	case errors.Is(mapped, ErrBackendUnavailable):
		f.engine.metrics.Inc(MetricBackendUnavailable)
		f.engine.logger.WarnContext(ctx, "backend unavailable", "scope", f.scope, "error", err)
	}
	return mapped
}

func (f *Flow) scheduleRefreshLocked(expiresAt time.Time) {
	f.stopRefreshLocked()
	if f.closed || expiresAt.IsZero() {
		return
	}
	delay := expiresAt.Sub(f.engine.clock.Now()) - f.engine.config.Session.RefreshLeeway
	if delay < 0 {
		delay = 0
	}
	f.refresh = f.engine.clock.AfterFunc(delay, f.onRefreshTimer)
}

func (f *Flow) retryRefresh() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || f.state != StateAuthenticated {
		return
	}
	f.stopRefreshLocked()
	f.refresh = f.engine.clock.AfterFunc(f.engine.config.Session.RefreshRetry, f.onRefreshTimer)
}

func (f *Flow) stopRefreshLocked() {
	if f.refresh != nil {
		f.refresh.Stop()
		f.refresh = nil
	}
}

// onRefreshTimer runs the scheduled refresh off the timer goroutine so a
// fake clock can keep advancing while the backend sleeps.
func (f *Flow) onRefreshTimer() {
	f.mu.Lock()
	closed := f.closed
	f.refresh = nil
	f.mu.Unlock()
	if closed {
		return
	}
	f.engine.runBackground(f.scheduledRefresh)
}

func (f *Flow) scheduledRefresh() {
	release, err := f.enter(false)
	if err != nil {
		if errors.Is(err, ErrRequestInFlight) {
			f.retryRefresh()
		}
		return
	}
	defer release()

	_, err = f.refreshSession(context.Background())
	switch {
	case err == nil,
		errors.Is(err, ErrSessionExpired),
		errors.Is(err, ErrNotAuthenticated):
	default:
		f.engine.logger.Warn("scheduled refresh failed", "scope", f.scope, "error", err)
		f.retryRefresh()
	}
}

// restore loads the scope's persisted state into a new flow.
func (f *Flow) restore(ctx context.Context) error {
	e := f.engine
	sess, err := e.store.Load(ctx, f.scope)
	switch {
	case err == nil:
		hydrate(sess)
		if e.clock.Now().Before(sess.ExpiresAt) {
			f.mu.Lock()
			f.state = StateAuthenticated
			f.scheduleRefreshLocked(sess.ExpiresAt)
			f.mu.Unlock()
			return nil
		}
		f.expire(ctx, sess)
	case errors.Is(err, session.ErrNoSession):
	default:
		return e.storageFailure(ctx, "Load", err)
	}

	email, err := e.store.Pending(ctx, f.scope)
	switch {
	case err == nil:
		f.mu.Lock()
		f.challenge = f.newChallengeLocked(email)
		f.state = StateOtpRequested
		f.mu.Unlock()
	case errors.Is(err, session.ErrNoPending):
		f.mu.Lock()
		f.state = StateUnauthenticated
		f.mu.Unlock()
	default:
		return e.storageFailure(ctx, "Pending", err)
	}
	return nil
}

/*
====================================
DASHBOARD
====================================
*/

// Profile fetches the account profile and refreshes the cached user_data.
func (f *Flow) Profile(ctx context.Context) (session.User, error) {
	release, err := f.enter(true)
	if err != nil {
		return session.User{}, err
	}
	defer release()

	sess, err := f.currentSession(ctx)
	if err != nil {
		return session.User{}, err
	}
	user, err := f.engine.backend.Profile(ctx, sess.Token)
	if err != nil {
		return session.User{}, f.backendFailure(ctx, err)
	}
	if err := f.engine.store.UpdateUser(ctx, f.scope, user); err != nil {
		f.engine.logger.WarnContext(ctx, "cache profile failed", "scope", f.scope, "error", err)
	}
	return user, nil
}

// UpdateProfile validates and saves the editable profile fields. Field
// problems are reported as a [*ValidationError].
func (f *Flow) UpdateProfile(ctx context.Context, upd session.ProfileUpdate) (session.User, error) {
	release, err := f.enter(true)
	if err != nil {
		return session.User{}, err
	}
	defer release()

	e := f.engine
	sess, err := f.currentSession(ctx)
	if err != nil {
		return session.User{}, err
	}

	upd.FullName = strings.TrimSpace(upd.FullName)
	upd.Email = strings.TrimSpace(upd.Email)
	upd.Address = strings.TrimSpace(upd.Address)
	if err := validateProfile(upd, e.clock.Now()); err != nil {
		e.emitAudit(ctx, AuditProfileUpdate, f.scope, false, err, sessionMetadata(sess))
		return session.User{}, err
	}

	user, err := e.backend.UpdateProfile(ctx, sess.Token, upd)
	if err != nil {
		err = f.backendFailure(ctx, err)
		e.emitAudit(ctx, AuditProfileUpdate, f.scope, false, err, sessionMetadata(sess))
		return session.User{}, err
	}
	if err := e.store.UpdateUser(ctx, f.scope, user); err != nil {
		return session.User{}, e.storageFailure(ctx, "UpdateUser", err)
	}

	e.metrics.Inc(MetricProfileUpdated)
	e.emitAudit(ctx, AuditProfileUpdate, f.scope, true, nil, sessionMetadata(sess))
	return user, nil
}

// Sessions lists the account's active sessions.
func (f *Flow) Sessions(ctx context.Context) ([]session.DeviceSession, error) {
	release, err := f.enter(true)
	if err != nil {
		return nil, err
	}
	defer release()

	sess, err := f.currentSession(ctx)
	if err != nil {
		return nil, err
	}
	list, err := f.engine.backend.ListSessions(ctx, sess.Token)
	if err != nil {
		return nil, f.backendFailure(ctx, err)
	}
	return list, nil
}

// TerminateSession revokes another session of the account. The current
// session cannot be terminated this way; use Logout.
func (f *Flow) TerminateSession(ctx context.Context, sessionID string) error {
	release, err := f.enter(true)
	if err != nil {
		return err
	}
	defer release()

	e := f.engine
	sess, err := f.currentSession(ctx)
	if err != nil {
		return err
	}
	if sessionID == "" {
		return ErrInvalidInput
	}
	if sessionID == sess.ID {
		return ErrCurrentSession
	}

	if err := e.backend.TerminateSession(ctx, sess.Token, sessionID); err != nil {
		err = f.backendFailure(ctx, err)
		e.emitAudit(ctx, AuditSessionTerminate, f.scope, false, err, map[string]string{"target": sessionID})
		return err
	}
	e.metrics.Inc(MetricSessionTerminated)
	e.emitAudit(ctx, AuditSessionTerminate, f.scope, true, nil, map[string]string{"target": sessionID})
	return nil
}

// TerminateOtherSessions revokes every session except the current one and
// returns how many were removed.
func (f *Flow) TerminateOtherSessions(ctx context.Context) (int, error) {
	release, err := f.enter(true)
	if err != nil {
		return 0, err
	}
	defer release()

	e := f.engine
	sess, err := f.currentSession(ctx)
	if err != nil {
		return 0, err
	}
	n, err := e.backend.TerminateOtherSessions(ctx, sess.Token)
	if err != nil {
		err = f.backendFailure(ctx, err)
		e.emitAudit(ctx, AuditSessionTerminate, f.scope, false, err, nil)
		return 0, err
	}
	for i := 0; i < n; i++ {
		e.metrics.Inc(MetricSessionTerminated)
	}
	e.emitAudit(ctx, AuditSessionTerminate, f.scope, true, nil, map[string]string{"count": strconv.Itoa(n)})
	return n, nil
}

func sessionFromGrant(g *mockapi.Grant) *session.Session {
	return &session.Session{
		ID:        g.SessionID,
		Token:     g.Token,
		User:      g.User,
		ExpiresAt: g.ExpiresAt,
	}
}

// hydrate fills ID and ExpiresAt from the token without verifying it.
// An unreadable token leaves ExpiresAt zero, which reads as expired.
func hydrate(sess *session.Session) {
	if sess == nil {
		return
	}
	if exp, err := jwt.PeekExpiry(sess.Token); err == nil {
		sess.ExpiresAt = exp
	}
	if sid, err := jwt.PeekSessionID(sess.Token); err == nil {
		sess.ID = sid
	}
}

func sessionMetadata(sess *session.Session) map[string]string {
	if sess == nil {
		return nil
	}
	return map[string]string{
		"user_id":    sess.User.ID,
		"session_id": sess.ID,
	}
}
