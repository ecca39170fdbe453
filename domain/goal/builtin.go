package goal

// DefaultID is the goal used when a caller does not choose one.
const DefaultID = "simple_recon"

// Builtin returns the built-in goal catalog in display order.
func Builtin() []Spec {
	return []Spec{
		{
			ID:                   "simple_recon",
			Label:                "Simple recon scan",
			Description:          "Host check, port scan, service detection, and OS fingerprint. You choose the steps.",
			Text:                 "Do a simple recon on the target: find open ports, identify services and versions, and perform an OS fingerprint. You decide the steps and approach.",
			IncludesReachability: true,
			Completion:           CompletionFull,
		},
		{
			ID:          "well_known_tcp",
			Label:       "Well known TCP scan",
			Description: "Ports 1-1024 only, then service and OS detection. Skips the host check.",
			Text: "Do a well-known TCP port scan on the target. Well-known typically means ports 1-1024. " +
				"Go straight to port scanning, then identify services and fingerprint the OS.",
			Completion: CompletionFull,
		},
		{
			ID:          "full_stealth_tcp",
			Label:       "Full Stealth TCP scan on all ports",
			Description: "All 65535 TCP ports (can take 45-60 min). Skips the host check. Stops after the port scan.",
			Text:        "Do a full stealth TCP scan on all ports of the target. Go straight to port scanning.",
			Completion:  CompletionScanOnly,
		},
		{
			ID:          "quick_top_ports",
			Label:       "Quick top ports",
			Description: "Small set of high-value ports (22, 80, 443, 21, 25, 53, 8080, 8443, 3389). Under a minute.",
			Text: "Scan only a small, fixed set of high-value ports (e.g. 22, 80, 443, 21, 25, 53, 8080, 8443, 3389). " +
				"Fast first look; go straight to port scanning.",
			Completion: CompletionScanOnly,
		},
		{
			ID:          "common_ports",
			Label:       "Common service ports",
			Description: "FTP, SSH, SMTP, DNS, HTTP, POP3, IMAP, HTTPS, 8080, 8443 plus service and version detection.",
			Text: "Scan common service ports (21, 22, 25, 53, 80, 110, 143, 443, 8080, 8443) and run service detection. " +
				"Go straight to port scanning, then detect services (scope all or common).",
			Completion: CompletionScanServices,
		},
		{
			ID:          "web_ports",
			Label:       "Web server ports",
			Description: "Ports 80, 443, 8080, 8443, 8000, 8888 plus service detection to identify the web stack.",
			Text: "Scan web-related ports only (80, 443, 8080, 8443, 8000, 8888) and run service detection " +
				"to identify the web stack and versions. Go straight to port scanning.",
			Completion: CompletionScanServices,
		},
		{
			ID:          "compliance_ports",
			Label:       "Policy / compliance ports",
			Description: "Fixed policy set (22, 80, 443, 3389, 5985) plus version detection for baselines.",
			Text: "Scan a fixed policy set (22, 80, 443, 3389, 5985) and run version detection for a compliance baseline. " +
				"Go straight to port scanning, then detect services.",
			Completion: CompletionScanServices,
		},
		{
			ID:          "external_perimeter",
			Label:       "External perimeter recon",
			Description: "Simulate an external attacker: host check, port scan, service detection, OS fingerprint.",
			Text: "Simulate an external attacker: check host reachability, then scan ports (well-known or top ports), " +
				"then detect services, then fingerprint the OS. You decide the steps and approach.",
			IncludesReachability: true,
			Completion:           CompletionFull,
		},
	}
}
