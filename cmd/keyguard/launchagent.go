package main

import (
	"fmt"
	"html"
	"strings"
)

const launchAgentLabel = "com.keyguard.daemon"

// launchAgentPlist renders the LaunchAgent that runs "keyguard daemon".
// cfgPath is passed through with --config when set.
func launchAgentPlist(binary, cfgPath, logPath string) string {
	args := []string{binary, "daemon"}
	if cfgPath != "" {
		args = append(args, "--config", cfgPath)
	}
	var b strings.Builder
	for _, a := range args {
		fmt.Fprintf(&b, "        <string>%s</string>\n", html.EscapeString(a))
	}

	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>%s</string>
    <key>ProgramArguments</key>
    <array>
%s    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <true/>
    <key>ProcessType</key>
    <string>Interactive</string>
    <key>StandardOutPath</key>
    <string>%s</string>
    <key>StandardErrorPath</key>
    <string>%s</string>
</dict>
</plist>
`, launchAgentLabel, b.String(), html.EscapeString(logPath), html.EscapeString(logPath))
}
