package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/taxdesk/taxdesk/internal/auth"
	"github.com/taxdesk/taxdesk/internal/config"
)

func TestPrompterDefaults(t *testing.T) {
	var out bytes.Buffer
	p := newPrompter(strings.NewReader("\nabc\n-3\n\ny\n  value  \n"), &out)

	if v, _ := p.Line("URL", "https://x"); v != "https://x" {
		t.Errorf("Line() = %q, want default", v)
	}
	if n, _ := p.Int("Workers", 4); n != 4 {
		t.Errorf("Int() with garbage = %d, want 4", n)
	}
	if n, _ := p.Int("Workers", 4); n != 4 {
		t.Errorf("Int() with negative = %d, want 4", n)
	}
	if ok, _ := p.Confirm("Proxy?", false); ok {
		t.Error("Confirm() empty answer should keep the default")
	}
	if ok, _ := p.Confirm("Proxy?", false); !ok {
		t.Error("Confirm() y should be true")
	}
	if v, _ := p.Secret("Token"); v != "value" {
		t.Errorf("Secret() = %q", v)
	}
	if !strings.Contains(out.String(), "URL [https://x]: ") {
		t.Errorf("default not shown:\n%s", out.String())
	}
}

func TestPrompterRequired(t *testing.T) {
	var out bytes.Buffer
	p := newPrompter(strings.NewReader("\n\nSmith\n"), &out)

	v, err := p.Required("Name")
	if err != nil || v != "Smith" {
		t.Fatalf("Required() = %q, %v", v, err)
	}
	if strings.Count(out.String(), "a value is required") != 2 {
		t.Errorf("expected two retries:\n%s", out.String())
	}
}

func TestPrompterEOF(t *testing.T) {
	p := newPrompter(strings.NewReader(""), &bytes.Buffer{})
	if _, err := p.Line("URL", ""); err == nil {
		t.Error("expected error at end of input")
	}
}

func TestPromptConfig(t *testing.T) {
	answers := strings.Join([]string{
		"https://portal.example.com",
		"secret-token",
		"77",
		"8",
		"",
		"50",
		"y",
		"ntlm",
		"proxy.corp",
		"3128",
		"DOMAIN\\jane",
	}, "\n") + "\n"

	cfg, err := promptConfig(newPrompter(strings.NewReader(answers), &bytes.Buffer{}))
	if err != nil {
		t.Fatalf("promptConfig() error = %v", err)
	}
	defaults := config.NewConfig()

	if cfg.APIBaseURL != "https://portal.example.com" || cfg.Token != "secret-token" || cfg.ClientID != "77" {
		t.Errorf("portal settings = %q %q %q", cfg.APIBaseURL, cfg.Token, cfg.ClientID)
	}
	if cfg.UploadWorkers != 8 || cfg.MaxRetries != defaults.MaxRetries || cfg.MaxFileSizeMB != 50 {
		t.Errorf("upload settings = %d %d %d", cfg.UploadWorkers, cfg.MaxRetries, cfg.MaxFileSizeMB)
	}
	if cfg.ProxyMode != config.ProxyModeNTLM || cfg.ProxyHost != "proxy.corp" || cfg.ProxyPort != 3128 || cfg.ProxyUser != "DOMAIN\\jane" {
		t.Errorf("proxy settings = %q %q %d %q", cfg.ProxyMode, cfg.ProxyHost, cfg.ProxyPort, cfg.ProxyUser)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("prompted config does not validate: %v", err)
	}
}

func TestPrintConfigMasksToken(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Token = "abcdefghijklmnopqrstuvwxyz"
	var out bytes.Buffer

	printConfig(&out, cfg, "/nonexistent/taxdesk/config")
	if strings.Contains(out.String(), cfg.Token) {
		t.Error("token printed in clear")
	}
	if !strings.Contains(out.String(), "file does not exist") {
		t.Errorf("missing file note:\n%s", out.String())
	}
}

func TestPrintTokenInfo(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	var out bytes.Buffer
	if err := printTokenInfo(&out, "opaque-token", now); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "opaque") {
		t.Errorf("opaque token not reported:\n%s", out.String())
	}

	claims := auth.Claims{
		Email: "preparer@example.com",
		Role:  "preparer",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "42",
			ExpiresAt: jwt.NewNumericDate(now.Add(2 * time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("k"))
	if err != nil {
		t.Fatal(err)
	}

	out.Reset()
	if err := printTokenInfo(&out, signed, now); err != nil {
		t.Fatal(err)
	}
	got := out.String()
	for _, want := range []string{"preparer@example.com", "(in 2h0m0s)", "⚠ API token expires in 2h0m0s"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}
