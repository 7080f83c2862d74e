package scanner

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/ferux/trafficsentinel/internal/config"
	"github.com/ferux/trafficsentinel/internal/model"
)

// Scanner reports the set of MAC addresses currently visible on the local
// network. An empty result is valid: it means reduced visibility, not an
// empty network.
type Scanner interface {
	Scan(ctx context.Context) ([]string, error)
}

// ARPScan shells out to arp-scan on the configured interface.
type ARPScan struct {
	iface   string
	timeout time.Duration
	logger  zerolog.Logger
}

func NewARPScan(cfg config.Scanner, logger zerolog.Logger) *ARPScan {
	return &ARPScan{
		iface:   cfg.Interface,
		timeout: cfg.Timeout.Std(),
		logger:  logger.With().Str("pkg", "scanner").Logger(),
	}
}

// Scan runs one arp-scan sweep and returns the visible addresses,
// normalized and deduplicated.
func (s *ARPScan) Scan(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "arp-scan", "--interface", s.iface, "--localnet", "--quiet")

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("running arp-scan on %s: %w", s.iface, err)
	}

	macs := parseOutput(out)
	s.logger.Debug().Int("devices", len(macs)).Msg("scan finished")

	return macs, nil
}

// parseOutput extracts MAC addresses from arp-scan output. Each device
// line is "<ip>\t<mac>\t<vendor>"; header and footer lines have no MAC in
// the second field and are skipped.
func parseOutput(out []byte) []string {
	seen := make(map[string]struct{})

	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		fields := bytes.Fields(sc.Bytes())
		if len(fields) < 2 {
			continue
		}

		mac, err := model.NormalizeMAC(string(fields[1]))
		if err != nil {
			continue
		}

		seen[mac] = struct{}{}
	}

	macs := make([]string, 0, len(seen))
	for mac := range seen {
		macs = append(macs, mac)
	}
	sort.Strings(macs)

	return macs
}
