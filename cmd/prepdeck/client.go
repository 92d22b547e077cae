package main

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/prepbrain/prepdeck/internal/config"
	"github.com/prepbrain/prepdeck/internal/controlplane"
	"github.com/prepbrain/prepdeck/internal/dashboard"
	"github.com/prepbrain/prepdeck/internal/journal"
)

// console bundles what a command needs to talk to the control plane.
type console struct {
	cfg     config.Config
	ctrl    *dashboard.Controller
	journal *journal.Store
}

func (c *console) Close() error {
	c.ctrl.Wait()
	if c.journal != nil {
		return c.journal.Close()
	}
	return nil
}

// newConsole is a variable so tests can point commands at a simulator.
var newConsole = func(tune ...func(*dashboard.Options)) (*console, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if serverURL != "" {
		cfg.Server.URL = serverURL
	}
	if cfg.UI.NoColor {
		noColor = true
	}

	j, err := journal.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	c, err := buildConsole(cfg, j, nil, tune...)
	if err != nil {
		j.Close()
		return nil, err
	}
	return c, nil
}

// buildConsole wires a controller from cfg. A nil httpClient gets one with
// the configured request timeout.
func buildConsole(cfg config.Config, j *journal.Store, httpClient *http.Client, tune ...func(*dashboard.Options)) (*console, error) {
	if httpClient == nil {
		timeout, err := cfg.RequestTimeout()
		if err != nil {
			return nil, err
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	client := controlplane.New(strings.TrimRight(cfg.Server.URL, "/"), cfg.Server.APIToken, httpClient)

	opts := dashboard.Options{
		LogLines: cfg.Poll.LogLines,
		LogLevel: controlplane.LogLevel(cfg.Poll.LogLevel),
	}
	if j != nil {
		opts.Journal = j
	}
	for _, fn := range tune {
		fn(&opts)
	}
	return &console{
		cfg:     cfg,
		ctrl:    dashboard.New(client, nil, opts),
		journal: j,
	}, nil
}
