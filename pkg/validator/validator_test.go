package validator

import (
	"errors"
	"net"
	"testing"
)

func TestNew(t *testing.T) {
	v := New()
	if v == nil || v.validate == nil {
		t.Fatal("expected validator to be initialized")
	}
}

func TestValidate_CustomTags(t *testing.T) {
	v := New()

	type request struct {
		Slug     string `json:"slug" validate:"omitempty,slug"`
		Plan     string `json:"plan" validate:"omitempty,plan"`
		Role     string `json:"role" validate:"omitempty,org_role"`
		Provider string `json:"provider" validate:"omitempty,scm_provider"`
		Cron     string `json:"cron" validate:"omitempty,cron"`
		Branch   string `json:"branch" validate:"omitempty,branch"`
	}

	tests := []struct {
		name    string
		input   request
		field   string
		wantErr bool
	}{
		{name: "all valid", input: request{Slug: "acme-corp", Plan: "pro", Role: "admin", Provider: "gitlab", Cron: "@daily", Branch: "main"}},
		{name: "bad slug", input: request{Slug: "Acme Corp"}, field: "slug", wantErr: true},
		{name: "bad plan", input: request{Plan: "GOLD"}, field: "plan", wantErr: true},
		{name: "bad role", input: request{Role: "root"}, field: "role", wantErr: true},
		{name: "bad provider", input: request{Provider: "svn"}, field: "provider", wantErr: true},
		{name: "bad cron", input: request{Cron: "every day"}, field: "cron", wantErr: true},
		{name: "bad branch", input: request{Branch: "a..b"}, field: "branch", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr {
				return
			}
			var verrs ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("expected ValidationErrors, got %T", err)
			}
			if len(verrs) != 1 || verrs[0].Field != tt.field {
				t.Errorf("got %+v, want single error on %q", verrs, tt.field)
			}
		})
	}
}

func TestValidate_RequiredMessage(t *testing.T) {
	type request struct {
		DisplayName string `validate:"required"`
	}
	err := New().Validate(request{})
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected ValidationErrors, got %v", err)
	}
	if verrs[0].Field != "display_name" || verrs[0].Message != "is required" {
		t.Errorf("unexpected error %+v", verrs[0])
	}
}

func TestSanitizeText(t *testing.T) {
	tests := map[string]string{
		"  Team Alpha  ":                        "Team Alpha",
		"<script>alert(1)</script>Ops":          "Ops",
		"<b>R&D</b>":                            "R&D",
		"ﬁnance":                                "finance",
		"line\x00break":                         "linebreak",
		"O'Reilly":                              "O'Reilly",
		`<a href="javascript:x()">click</a> me`: "click me",
	}
	for in, want := range tests {
		if got := SanitizeText(in); got != want {
			t.Errorf("SanitizeText(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCleanTextTag(t *testing.T) {
	type request struct {
		Name string `json:"name" validate:"clean_text"`
	}
	v := New()
	if err := v.Validate(request{Name: "Backend team"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := v.Validate(request{Name: "<img src=x>Backend"}); err == nil {
		t.Error("expected markup to be rejected")
	}
}

func TestHostPolicy(t *testing.T) {
	resolver := func(host string) ([]net.IP, error) {
		switch host {
		case "internal.example.com":
			return []net.IP{net.ParseIP("10.1.2.3")}, nil
		case "github.com":
			return []net.IP{net.ParseIP("140.82.112.3")}, nil
		}
		return nil, errors.New("nxdomain")
	}
	p := NewHostPolicy(WithResolver(resolver))

	allowed := []string{"github.com", "140.82.112.3"}
	blocked := []string{"", "localhost", "api.localhost", "127.0.0.1", "[::1]", "10.0.0.5", "192.168.1.1", "169.254.169.254", "internal.example.com", "missing.example.com"}

	for _, h := range allowed {
		if err := p.Check(h); err != nil {
			t.Errorf("Check(%q) = %v, want nil", h, err)
		}
	}
	for _, h := range blocked {
		if err := p.Check(h); err == nil {
			t.Errorf("Check(%q) = nil, want error", h)
		}
	}

	permissive := NewHostPolicy(WithAllowInternalIPs(true), WithAllowLocalhost(true))
	if err := permissive.Check("127.0.0.1"); err != nil {
		t.Errorf("permissive policy rejected loopback: %v", err)
	}
}
