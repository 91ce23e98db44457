package authflow

import (
	"errors"
	"fmt"
)

// Estados de primer nivel del flujo de login.
type State string

const (
	StateLoading             State = "loading"
	StateUnauthenticated     State = "unauthenticated"
	StateOTPRequested        State = "otp_requested"
	StateOTPSent             State = "otp_sent"
	StateLineAuthenticating  State = "line_authenticating"
	StateAuthenticated       State = "authenticated"
	StateError               State = "error"
)

// Sub-estados dentro de authenticated (gate de perfil).
type ProfileState string

const (
	ProfileChecking ProfileState = "checking_profile"
	ProfileNeeded   ProfileState = "needs_profile"
	ProfileCreating ProfileState = "creating_profile"
	ProfileComplete ProfileState = "complete"
)

// SessionClaims son los claims de sesión que el cliente conoce.
type SessionClaims struct {
	UserID      string
	Provider    string
	DisplayName string
	IsNewUser   bool
}

// Context es la única fuente de verdad del flujo: no hay un store paralelo.
type Context struct {
	Email   string
	Claims  SessionClaims
	LastErr string
}

var ErrInvalidTransition = errors.New("invalid transition")

// Event es un evento discreto del flujo: acción del usuario o resolución de
// una llamada asíncrona. Los eventos de completación llevan el Seq del efecto
// que los originó; un Seq viejo se descarta sin tocar el estado.
type Event interface{ event() }

type (
	// Resolución de la carga inicial de sesión.
	SessionFound   struct{ Claims SessionClaims }
	SessionMissing struct{}
	LoadFailed     struct{ Err string }

	// Acciones del usuario.
	SendCode    struct{ Email string }
	SubmitCode  struct{ Code string }
	ResendCode  struct{}
	StartLine   struct{}
	CreateProfile struct {
		Name  string
		Bio   string
		Image string
	}
	Retry   struct{}
	SignOut struct{}

	// Resoluciones asíncronas; Seq identifica el efecto pendiente.
	CodeDelivered   struct{ Seq int }
	DeliveryFailed  struct {
		Seq int
		Err string
	}
	VerifySucceeded struct {
		Seq    int
		Claims SessionClaims
	}
	VerifyFailed struct {
		Seq int
		Err string
	}
	LineSucceeded struct {
		Seq    int
		Claims SessionClaims
	}
	LineFailed struct {
		Seq int
		Err string
	}
	ProfileChecked struct{}
	ProfileCreated struct {
		Seq    int
		Claims SessionClaims
	}
	ProfileFailed struct {
		Seq int
		Err string
	}
)

func (SessionFound) event()    {}
func (SessionMissing) event()  {}
func (LoadFailed) event()      {}
func (SendCode) event()        {}
func (SubmitCode) event()      {}
func (ResendCode) event()      {}
func (StartLine) event()       {}
func (CreateProfile) event()   {}
func (Retry) event()           {}
func (SignOut) event()         {}
func (CodeDelivered) event()   {}
func (DeliveryFailed) event()  {}
func (VerifySucceeded) event() {}
func (VerifyFailed) event()    {}
func (LineSucceeded) event()   {}
func (LineFailed) event()      {}
func (ProfileChecked) event()  {}
func (ProfileCreated) event()  {}
func (ProfileFailed) event()   {}

// Effect describe la llamada que el cliente debe ejecutar tras una
// transición. El Seq debe volver en el evento de resolución.
type Effect interface{ effect() }

type (
	LoadSessionEffect   struct{ Seq int }
	SendCodeEffect      struct {
		Seq   int
		Email string
	}
	VerifyCodeEffect struct {
		Seq   int
		Email string
		Code  string
	}
	LineLoginEffect     struct{ Seq int }
	CreateProfileEffect struct {
		Seq   int
		Name  string
		Bio   string
		Image string
	}
)

func (LoadSessionEffect) effect()   {}
func (SendCodeEffect) effect()      {}
func (VerifyCodeEffect) effect()    {}
func (LineLoginEffect) effect()     {}
func (CreateProfileEffect) effect() {}

// Machine coordina el flujo multi-paso de login y completación de perfil.
// Es cooperativa: un solo goroutine despacha eventos, cada llamada asíncrona
// se resuelve antes del siguiente evento del usuario.
type Machine struct {
	state   State
	profile ProfileState
	ctx     Context
	seq     int
}

// NewMachine arranca en loading y entrega el efecto de detección de sesión.
func NewMachine() (*Machine, Effect) {
	m := &Machine{state: StateLoading}
	m.seq++
	return m, LoadSessionEffect{Seq: m.seq}
}

func (m *Machine) State() State           { return m.state }
func (m *Machine) Profile() ProfileState  { return m.profile }
func (m *Machine) Context() Context       { return m.ctx }

// Authenticated indica si el flujo llegó a un estado autenticado.
func (m *Machine) Authenticated() bool { return m.state == StateAuthenticated }

// stale reporta si un evento de resolución pertenece a un efecto superado.
func (m *Machine) stale(seq int) bool { return seq != m.seq }

// next arranca un efecto nuevo e invalida las resoluciones pendientes.
func (m *Machine) next() int {
	m.seq++
	return m.seq
}

// Dispatch aplica un evento. Un par (estado, evento) no contemplado devuelve
// ErrInvalidTransition; una resolución con Seq viejo se descarta sin efecto.
func (m *Machine) Dispatch(ev Event) (Effect, error) {
	switch m.state {
	case StateLoading:
		return m.dispatchLoading(ev)
	case StateUnauthenticated:
		return m.dispatchUnauthenticated(ev)
	case StateOTPRequested:
		return m.dispatchOTPRequested(ev)
	case StateOTPSent:
		return m.dispatchOTPSent(ev)
	case StateLineAuthenticating:
		return m.dispatchLineAuthenticating(ev)
	case StateAuthenticated:
		return m.dispatchAuthenticated(ev)
	case StateError:
		return m.dispatchError(ev)
	}
	return nil, fmt.Errorf("%w: unknown state %q", ErrInvalidTransition, m.state)
}

func (m *Machine) dispatchLoading(ev Event) (Effect, error) {
	switch e := ev.(type) {
	case SessionFound:
		m.enterAuthenticated(e.Claims)
		return nil, nil
	case SessionMissing:
		m.state = StateUnauthenticated
		return nil, nil
	case LoadFailed:
		m.state = StateError
		m.ctx.LastErr = e.Err
		return nil, nil
	}
	return nil, m.reject(ev)
}

func (m *Machine) dispatchUnauthenticated(ev Event) (Effect, error) {
	switch e := ev.(type) {
	case SendCode:
		m.state = StateOTPRequested
		m.ctx.Email = e.Email
		m.ctx.LastErr = ""
		return SendCodeEffect{Seq: m.next(), Email: e.Email}, nil
	case StartLine:
		m.state = StateLineAuthenticating
		m.ctx.LastErr = ""
		return LineLoginEffect{Seq: m.next()}, nil
	case SessionFound:
		// Sesión detectada por fuera del flujo (otra pestaña, reload).
		m.enterAuthenticated(e.Claims)
		return nil, nil
	}
	return nil, m.reject(ev)
}

func (m *Machine) dispatchOTPRequested(ev Event) (Effect, error) {
	switch e := ev.(type) {
	case SendCode:
		// Ya hay un envío en vuelo: no se duplica el efecto.
		return nil, m.reject(ev)
	case CodeDelivered:
		if m.stale(e.Seq) {
			return nil, nil
		}
		m.state = StateOTPSent
		return nil, nil
	case DeliveryFailed:
		if m.stale(e.Seq) {
			return nil, nil
		}
		m.state = StateUnauthenticated
		m.ctx.LastErr = e.Err
		return nil, nil
	}
	return nil, m.reject(ev)
}

func (m *Machine) dispatchOTPSent(ev Event) (Effect, error) {
	switch e := ev.(type) {
	case SubmitCode:
		return VerifyCodeEffect{Seq: m.next(), Email: m.ctx.Email, Code: e.Code}, nil
	case VerifySucceeded:
		if m.stale(e.Seq) {
			return nil, nil
		}
		m.enterAuthenticated(e.Claims)
		return nil, nil
	case VerifyFailed:
		// Mismo estado: el usuario puede reintentar con otro código.
		if m.stale(e.Seq) {
			return nil, nil
		}
		m.ctx.LastErr = e.Err
		return nil, nil
	case ResendCode:
		m.state = StateOTPRequested
		m.ctx.LastErr = ""
		return SendCodeEffect{Seq: m.next(), Email: m.ctx.Email}, nil
	}
	return nil, m.reject(ev)
}

func (m *Machine) dispatchLineAuthenticating(ev Event) (Effect, error) {
	switch e := ev.(type) {
	case LineSucceeded:
		if m.stale(e.Seq) {
			return nil, nil
		}
		m.enterAuthenticated(e.Claims)
		return nil, nil
	case LineFailed:
		if m.stale(e.Seq) {
			return nil, nil
		}
		m.state = StateUnauthenticated
		m.ctx.LastErr = e.Err
		return nil, nil
	}
	return nil, m.reject(ev)
}

func (m *Machine) dispatchAuthenticated(ev Event) (Effect, error) {
	switch e := ev.(type) {
	case ProfileChecked:
		if m.profile != ProfileChecking {
			return nil, m.reject(ev)
		}
		if m.ctx.Claims.IsNewUser {
			m.profile = ProfileNeeded
		} else {
			m.profile = ProfileComplete
		}
		return nil, nil
	case CreateProfile:
		if m.profile != ProfileNeeded {
			return nil, m.reject(ev)
		}
		m.profile = ProfileCreating
		m.ctx.LastErr = ""
		return CreateProfileEffect{Seq: m.next(), Name: e.Name, Bio: e.Bio, Image: e.Image}, nil
	case ProfileCreated:
		if m.profile != ProfileCreating || m.stale(e.Seq) {
			return nil, nil
		}
		m.ctx.Claims = e.Claims
		m.profile = ProfileComplete
		return nil, nil
	case ProfileFailed:
		if m.profile != ProfileCreating || m.stale(e.Seq) {
			return nil, nil
		}
		m.profile = ProfileNeeded
		m.ctx.LastErr = e.Err
		return nil, nil
	case SignOut:
		m.state = StateUnauthenticated
		m.profile = ""
		m.ctx = Context{}
		return nil, nil
	}
	return nil, m.reject(ev)
}

func (m *Machine) dispatchError(ev Event) (Effect, error) {
	switch ev.(type) {
	case Retry:
		m.state = StateLoading
		m.ctx.LastErr = ""
		return LoadSessionEffect{Seq: m.next()}, nil
	}
	return nil, m.reject(ev)
}

func (m *Machine) enterAuthenticated(claims SessionClaims) {
	m.state = StateAuthenticated
	m.profile = ProfileChecking
	m.ctx.Claims = claims
	m.ctx.LastErr = ""
}

func (m *Machine) reject(ev Event) error {
	return fmt.Errorf("%w: %T in state %s", ErrInvalidTransition, ev, m.state)
}
