package config

import (
	"encoding/json"
	"os"
	stdtime "time"

	"github.com/ferux/trafficsentinel/internal/time"
)

// Application settings.
type Application struct {
	Debug       bool        `json:"debug"`
	HTTP        *HTTP       `json:"http"`
	SentryDSN   string      `json:"sentry_dsn"`
	LogFile     string      `json:"log_file"`
	Database    Database    `json:"database"`
	Scanner     Scanner     `json:"scanner"`
	Freebox     Freebox     `json:"freebox"`
	NotifySlack NotifySlack `json:"notify_slack"`
	Sentinel    Sentinel    `json:"sentinel"`
}

type HTTP struct {
	Listen  string        `json:"listen"`
	Timeout time.Duration `json:"timeout"`
}

type Database struct {
	Path string `json:"path"`
}

// Scanner configures the arp-scan invocation.
type Scanner struct {
	Interface string        `json:"interface"`
	Timeout   time.Duration `json:"timeout"`
}

// Freebox holds the router API access settings. TokenFile stores the app
// token granted during pairing and the last session token.
type Freebox struct {
	BaseURL   string `json:"base_url"`
	AppID     string `json:"app_id"`
	TokenFile string `json:"token_file"`
}

type NotifySlack struct {
	WebhookURL string `json:"webhook_url"`
}

// Sentinel controls the reconciliation loop: how often the network is
// scanned and every how many cycles the router blocklist is audited.
type Sentinel struct {
	ScanInterval time.Duration `json:"scan_interval"`
	AuditEvery   int           `json:"audit_every"`
}

// Parse parses config from file.
func Parse(path string) (Application, error) {
	fileBytes, err := os.ReadFile(path)
	if err != nil {
		return Application{}, err
	}

	app := Application{}
	err = json.Unmarshal(fileBytes, &app)
	if err != nil {
		return Application{}, err
	}

	app.applyDefaults()

	return app, nil
}

func (app *Application) applyDefaults() {
	// a config file with no http section must not panic the api setup
	if app.HTTP == nil {
		app.HTTP = &HTTP{}
	}
	if app.HTTP.Listen == "" {
		app.HTTP.Listen = ":8080"
	}
	if app.HTTP.Timeout == 0 {
		app.HTTP.Timeout = time.Duration(30 * stdtime.Second)
	}

	if app.Scanner.Timeout == 0 {
		app.Scanner.Timeout = time.Duration(30 * stdtime.Second)
	}

	if app.Sentinel.ScanInterval == 0 {
		app.Sentinel.ScanInterval = time.Duration(300 * stdtime.Second)
	}

	if app.Sentinel.AuditEvery == 0 {
		app.Sentinel.AuditEvery = 3
	}
}
