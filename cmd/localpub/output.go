package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"localpub/internal/config"
	"localpub/internal/constants"
	"localpub/internal/types"
	"localpub/internal/utils"
)

type printer struct {
	out io.Writer
}

func (p printer) banner() {
	fmt.Fprintln(p.out)
	fmt.Fprintf(p.out, "  %s%s%s%s %sv%s%s\n", constants.ColorBold, constants.ColorCyan, constants.AppName, constants.ColorReset, constants.ColorBold, constants.Version, constants.ColorReset)
	fmt.Fprintf(p.out, "  %sExpose your local app to the internet%s\n", constants.ColorDim, constants.ColorReset)
	fmt.Fprintln(p.out)
}

func (p printer) hint(text string) {
	fmt.Fprintf(p.out, "  %s%s%s\n", constants.ColorDim, text, constants.ColorReset)
}

func (p printer) field(label, value, valueColor string) {
	fmt.Fprintf(p.out, "  %s%-12s%s %s%s%s\n", constants.ColorDim, label, constants.ColorReset, valueColor, value, constants.ColorReset)
}

func (p printer) sep() {
	fmt.Fprintf(p.out, "  %s%s%s\n", constants.ColorDim, strings.Repeat("─", 50), constants.ColorReset)
}

func (p printer) failure(err error) {
	fmt.Fprintln(p.out)
	fmt.Fprintf(p.out, "  %s✗ %s%s\n", constants.ColorRed, err, constants.ColorReset)
	if hint := types.HintOf(err); hint != "" {
		p.hint("→ " + hint)
	}
	fmt.Fprintln(p.out)
}

type tunnelInfo struct {
	publicURL string
	localURL  string
	cfg       *config.TunnelConfig
	profile   types.AppProfile
	generated bool
	logPath   string
	auditPath string
	noQR      bool
}

func (p printer) tunnel(info tunnelInfo) {
	expiresAt := time.Now().Add(info.cfg.TTL).Format(constants.TimeFormatShort)

	fmt.Fprintln(p.out)
	fmt.Fprintf(p.out, "  %s%s● tunnel active%s\n", constants.ColorBold, constants.ColorGreen, constants.ColorReset)
	fmt.Fprintln(p.out)
	p.field("public url", info.publicURL, constants.ColorCyan)
	p.field("local", info.localURL, constants.ColorReset)
	p.field("expires", fmt.Sprintf("%s (%s)", expiresAt, utils.FormatDuration(info.cfg.TTL)), constants.ColorReset)
	if info.logPath != "" {
		p.field("logs", info.logPath, constants.ColorDim)
	}
	if info.auditPath != "" {
		p.field("audit", info.auditPath, constants.ColorDim)
	}

	if creds := info.cfg.Credentials; creds != nil {
		fmt.Fprintln(p.out)
		p.sep()
		fmt.Fprintln(p.out)
		p.field("username", creds.Username, constants.ColorYellow)
		if info.generated {
			p.field("password", creds.Password, constants.ColorYellow)
			p.hint("generated password, shown only once")
		} else {
			p.field("password", strings.Repeat("*", len(creds.Password)), constants.ColorDim)
		}
	}

	if tip := info.profile.Tip(); tip != "" {
		fmt.Fprintln(p.out)
		fmt.Fprintf(p.out, "  %s💡 %s%s\n", constants.ColorPurple, tip, constants.ColorReset)
	}

	if !info.noQR {
		if qr, err := qrcode.New(info.publicURL, qrcode.Low); err == nil {
			fmt.Fprintln(p.out)
			for _, line := range strings.Split(strings.TrimRight(qr.ToSmallString(false), "\n"), "\n") {
				fmt.Fprintf(p.out, "  %s\n", line)
			}
		}
	}

	fmt.Fprintln(p.out)
	p.sep()
	fmt.Fprintln(p.out)
	p.hint("ctrl+c to stop")
	fmt.Fprintln(p.out)
}
