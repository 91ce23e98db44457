package authflow

import (
	"errors"
	"testing"
)

func advanceToUnauthenticated(t *testing.T) *Machine {
	t.Helper()
	m, eff := NewMachine()
	if _, ok := eff.(LoadSessionEffect); !ok {
		t.Fatalf("expected LoadSessionEffect on start, got %T", eff)
	}
	if _, err := m.Dispatch(SessionMissing{}); err != nil {
		t.Fatalf("SessionMissing: %v", err)
	}
	if m.State() != StateUnauthenticated {
		t.Fatalf("expected unauthenticated, got %s", m.State())
	}
	return m
}

func TestMachineRestoredSession(t *testing.T) {
	m, _ := NewMachine()
	claims := SessionClaims{UserID: "u-1", Provider: "otp", DisplayName: "Hana"}
	if _, err := m.Dispatch(SessionFound{Claims: claims}); err != nil {
		t.Fatalf("SessionFound: %v", err)
	}
	if !m.Authenticated() {
		t.Fatal("expected authenticated state")
	}
	if m.Profile() != ProfileChecking {
		t.Fatalf("expected checking_profile, got %s", m.Profile())
	}
	if _, err := m.Dispatch(ProfileChecked{}); err != nil {
		t.Fatalf("ProfileChecked: %v", err)
	}
	if m.Profile() != ProfileComplete {
		t.Fatalf("expected complete profile for returning user, got %s", m.Profile())
	}
}

func TestMachineOTPHappyPathNewUser(t *testing.T) {
	m := advanceToUnauthenticated(t)

	eff, err := m.Dispatch(SendCode{Email: "hana@example.com"})
	if err != nil {
		t.Fatalf("SendCode: %v", err)
	}
	send, ok := eff.(SendCodeEffect)
	if !ok {
		t.Fatalf("expected SendCodeEffect, got %T", eff)
	}
	if send.Email != "hana@example.com" {
		t.Fatalf("unexpected email in effect: %q", send.Email)
	}
	if m.State() != StateOTPRequested {
		t.Fatalf("expected otp_requested, got %s", m.State())
	}

	if _, err := m.Dispatch(CodeDelivered{Seq: send.Seq}); err != nil {
		t.Fatalf("CodeDelivered: %v", err)
	}
	if m.State() != StateOTPSent {
		t.Fatalf("expected otp_sent, got %s", m.State())
	}

	eff, err = m.Dispatch(SubmitCode{Code: "482913"})
	if err != nil {
		t.Fatalf("SubmitCode: %v", err)
	}
	verify, ok := eff.(VerifyCodeEffect)
	if !ok {
		t.Fatalf("expected VerifyCodeEffect, got %T", eff)
	}
	if verify.Email != "hana@example.com" || verify.Code != "482913" {
		t.Fatalf("unexpected verify effect: %+v", verify)
	}

	claims := SessionClaims{UserID: "u-1", Provider: "otp", IsNewUser: true}
	if _, err := m.Dispatch(VerifySucceeded{Seq: verify.Seq, Claims: claims}); err != nil {
		t.Fatalf("VerifySucceeded: %v", err)
	}
	if !m.Authenticated() {
		t.Fatal("expected authenticated state")
	}

	if _, err := m.Dispatch(ProfileChecked{}); err != nil {
		t.Fatalf("ProfileChecked: %v", err)
	}
	if m.Profile() != ProfileNeeded {
		t.Fatalf("expected needs_profile for new user, got %s", m.Profile())
	}

	eff, err = m.Dispatch(CreateProfile{Name: "Hana", Bio: "hi"})
	if err != nil {
		t.Fatalf("CreateProfile: %v", err)
	}
	create, ok := eff.(CreateProfileEffect)
	if !ok {
		t.Fatalf("expected CreateProfileEffect, got %T", eff)
	}
	done := SessionClaims{UserID: "u-1", Provider: "otp", DisplayName: "Hana"}
	if _, err := m.Dispatch(ProfileCreated{Seq: create.Seq, Claims: done}); err != nil {
		t.Fatalf("ProfileCreated: %v", err)
	}
	if m.Profile() != ProfileComplete {
		t.Fatalf("expected complete profile, got %s", m.Profile())
	}
	if m.Context().Claims.DisplayName != "Hana" {
		t.Fatalf("expected refreshed claims, got %+v", m.Context().Claims)
	}
}

func TestMachineVerifyFailureAllowsRetry(t *testing.T) {
	m := advanceToUnauthenticated(t)
	eff, _ := m.Dispatch(SendCode{Email: "hana@example.com"})
	send := eff.(SendCodeEffect)
	m.Dispatch(CodeDelivered{Seq: send.Seq})

	eff, _ = m.Dispatch(SubmitCode{Code: "000000"})
	verify := eff.(VerifyCodeEffect)
	if _, err := m.Dispatch(VerifyFailed{Seq: verify.Seq, Err: "invalid code"}); err != nil {
		t.Fatalf("VerifyFailed: %v", err)
	}
	if m.State() != StateOTPSent {
		t.Fatalf("expected to stay in otp_sent after a bad code, got %s", m.State())
	}
	if m.Context().LastErr != "invalid code" {
		t.Fatalf("expected last error recorded, got %q", m.Context().LastErr)
	}

	// El reintento con otro código sigue disponible.
	if _, err := m.Dispatch(SubmitCode{Code: "111111"}); err != nil {
		t.Fatalf("SubmitCode retry: %v", err)
	}
}

func TestMachineStaleResolutionIsDiscarded(t *testing.T) {
	m := advanceToUnauthenticated(t)
	eff, _ := m.Dispatch(SendCode{Email: "hana@example.com"})
	send := eff.(SendCodeEffect)
	m.Dispatch(CodeDelivered{Seq: send.Seq})

	eff, _ = m.Dispatch(SubmitCode{Code: "000000"})
	first := eff.(VerifyCodeEffect)
	eff, _ = m.Dispatch(SubmitCode{Code: "111111"})
	second := eff.(VerifyCodeEffect)

	// La resolución del primer verify ya quedó superada por el segundo.
	if _, err := m.Dispatch(VerifySucceeded{Seq: first.Seq, Claims: SessionClaims{UserID: "ghost"}}); err != nil {
		t.Fatalf("stale VerifySucceeded: %v", err)
	}
	if m.Authenticated() {
		t.Fatal("stale resolution must not authenticate")
	}

	if _, err := m.Dispatch(VerifySucceeded{Seq: second.Seq, Claims: SessionClaims{UserID: "u-1"}}); err != nil {
		t.Fatalf("VerifySucceeded: %v", err)
	}
	if !m.Authenticated() || m.Context().Claims.UserID != "u-1" {
		t.Fatalf("expected the current resolution to win, got %+v", m.Context().Claims)
	}
}

func TestMachineDuplicateSendCodeRejected(t *testing.T) {
	m := advanceToUnauthenticated(t)
	if _, err := m.Dispatch(SendCode{Email: "hana@example.com"}); err != nil {
		t.Fatalf("SendCode: %v", err)
	}
	if _, err := m.Dispatch(SendCode{Email: "hana@example.com"}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on duplicate send, got %v", err)
	}
}

func TestMachineResendCode(t *testing.T) {
	m := advanceToUnauthenticated(t)
	eff, _ := m.Dispatch(SendCode{Email: "hana@example.com"})
	send := eff.(SendCodeEffect)
	m.Dispatch(CodeDelivered{Seq: send.Seq})

	eff, err := m.Dispatch(ResendCode{})
	if err != nil {
		t.Fatalf("ResendCode: %v", err)
	}
	resend, ok := eff.(SendCodeEffect)
	if !ok {
		t.Fatalf("expected SendCodeEffect, got %T", eff)
	}
	if resend.Email != "hana@example.com" {
		t.Fatalf("resend must reuse the captured email, got %q", resend.Email)
	}
	if m.State() != StateOTPRequested {
		t.Fatalf("expected otp_requested, got %s", m.State())
	}
}

func TestMachineDeliveryFailureReturnsToUnauthenticated(t *testing.T) {
	m := advanceToUnauthenticated(t)
	eff, _ := m.Dispatch(SendCode{Email: "hana@example.com"})
	send := eff.(SendCodeEffect)

	if _, err := m.Dispatch(DeliveryFailed{Seq: send.Seq, Err: "smtp down"}); err != nil {
		t.Fatalf("DeliveryFailed: %v", err)
	}
	if m.State() != StateUnauthenticated {
		t.Fatalf("expected unauthenticated, got %s", m.State())
	}
	if m.Context().LastErr != "smtp down" {
		t.Fatalf("expected delivery error recorded, got %q", m.Context().LastErr)
	}
}

func TestMachineLineFlow(t *testing.T) {
	m := advanceToUnauthenticated(t)

	eff, err := m.Dispatch(StartLine{})
	if err != nil {
		t.Fatalf("StartLine: %v", err)
	}
	line, ok := eff.(LineLoginEffect)
	if !ok {
		t.Fatalf("expected LineLoginEffect, got %T", eff)
	}
	if m.State() != StateLineAuthenticating {
		t.Fatalf("expected line_authenticating, got %s", m.State())
	}

	claims := SessionClaims{UserID: "u-9", Provider: "line", DisplayName: "Taro"}
	if _, err := m.Dispatch(LineSucceeded{Seq: line.Seq, Claims: claims}); err != nil {
		t.Fatalf("LineSucceeded: %v", err)
	}
	if _, err := m.Dispatch(ProfileChecked{}); err != nil {
		t.Fatalf("ProfileChecked: %v", err)
	}
	if m.Profile() != ProfileComplete {
		t.Fatalf("line users never need profile creation, got %s", m.Profile())
	}
}

func TestMachineLineFailure(t *testing.T) {
	m := advanceToUnauthenticated(t)
	eff, _ := m.Dispatch(StartLine{})
	line := eff.(LineLoginEffect)

	if _, err := m.Dispatch(LineFailed{Seq: line.Seq, Err: "state mismatch"}); err != nil {
		t.Fatalf("LineFailed: %v", err)
	}
	if m.State() != StateUnauthenticated {
		t.Fatalf("expected unauthenticated, got %s", m.State())
	}
}

func TestMachineProfileFailureKeepsNeedsProfile(t *testing.T) {
	m := advanceToUnauthenticated(t)
	eff, _ := m.Dispatch(SendCode{Email: "hana@example.com"})
	send := eff.(SendCodeEffect)
	m.Dispatch(CodeDelivered{Seq: send.Seq})
	eff, _ = m.Dispatch(SubmitCode{Code: "482913"})
	verify := eff.(VerifyCodeEffect)
	m.Dispatch(VerifySucceeded{Seq: verify.Seq, Claims: SessionClaims{UserID: "u-1", IsNewUser: true}})
	m.Dispatch(ProfileChecked{})

	eff, _ = m.Dispatch(CreateProfile{Name: "Hana"})
	create := eff.(CreateProfileEffect)
	if _, err := m.Dispatch(ProfileFailed{Seq: create.Seq, Err: "name required"}); err != nil {
		t.Fatalf("ProfileFailed: %v", err)
	}
	if m.Profile() != ProfileNeeded {
		t.Fatalf("expected needs_profile after failure, got %s", m.Profile())
	}

	// El formulario se puede reenviar.
	if _, err := m.Dispatch(CreateProfile{Name: "Hana"}); err != nil {
		t.Fatalf("CreateProfile retry: %v", err)
	}
}

func TestMachineSignOutResetsContext(t *testing.T) {
	m, _ := NewMachine()
	m.Dispatch(SessionFound{Claims: SessionClaims{UserID: "u-1"}})
	if _, err := m.Dispatch(SignOut{}); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	if m.State() != StateUnauthenticated {
		t.Fatalf("expected unauthenticated, got %s", m.State())
	}
	if m.Context() != (Context{}) {
		t.Fatalf("expected cleared context, got %+v", m.Context())
	}
}

func TestMachineErrorRetry(t *testing.T) {
	m, _ := NewMachine()
	if _, err := m.Dispatch(LoadFailed{Err: "storage unavailable"}); err != nil {
		t.Fatalf("LoadFailed: %v", err)
	}
	if m.State() != StateError {
		t.Fatalf("expected error state, got %s", m.State())
	}

	eff, err := m.Dispatch(Retry{})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if _, ok := eff.(LoadSessionEffect); !ok {
		t.Fatalf("expected LoadSessionEffect on retry, got %T", eff)
	}
	if m.State() != StateLoading {
		t.Fatalf("expected loading, got %s", m.State())
	}
}

func TestMachineRejectsUnknownPairs(t *testing.T) {
	cases := []struct {
		name  string
		setup func(t *testing.T) *Machine
		ev    Event
	}{
		{"submit while loading", func(t *testing.T) *Machine { m, _ := NewMachine(); return m }, SubmitCode{Code: "123456"}},
		{"submit while unauthenticated", advanceToUnauthenticated, SubmitCode{Code: "123456"}},
		{"signout while unauthenticated", advanceToUnauthenticated, SignOut{}},
		{"resend while unauthenticated", advanceToUnauthenticated, ResendCode{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := tc.setup(t)
			if _, err := m.Dispatch(tc.ev); !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("expected ErrInvalidTransition, got %v", err)
			}
		})
	}
}
