// vellum-trust is the one-shot CLI for inspecting and managing plugin
// trust: discovering candidates, approving or revoking trust entries,
// and checking whether an operation would currently be permitted.
// It never runs as a long-lived process; vellum-trustd hosts the
// equivalent functionality over HTTP for callers that need that.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/vellum-dev/vellum/pkg/capability"
	"github.com/vellum-dev/vellum/pkg/discovery"
	"github.com/vellum-dev/vellum/pkg/identity"
	"github.com/vellum-dev/vellum/pkg/logging"
	"github.com/vellum-dev/vellum/pkg/metrics"
	"github.com/vellum-dev/vellum/pkg/paths"
	"github.com/vellum-dev/vellum/pkg/permission"
	"github.com/vellum-dev/vellum/pkg/trust"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		showHelp()
		os.Exit(1)
	}

	command := os.Args[1]
	switch command {
	case "discover":
		runDiscover(os.Args[2:])
	case "trust":
		runTrust(os.Args[2:])
	case "check":
		runCheck(os.Args[2:])
	case "version", "-v", "--version":
		showVersion()
	case "help", "-h", "--help":
		showHelp()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		showHelp()
		os.Exit(1)
	}
}

func showHelp() {
	fmt.Printf("vellum-trust - Plugin Trust & Capability Subsystem CLI\n\n")
	fmt.Printf("Usage:\n")
	fmt.Printf("  vellum-trust <command> [options]\n\n")
	fmt.Printf("Commands:\n")
	fmt.Printf("  discover            Scan configured roots for plugin candidates\n")
	fmt.Printf("  trust list          List every trust-store entry\n")
	fmt.Printf("  trust show <name>   Show one trust-store entry\n")
	fmt.Printf("  trust approve -root <path> <name>   Fingerprint and trust a plugin\n")
	fmt.Printf("  trust revoke <name> Remove a trust-store entry\n")
	fmt.Printf("  check               Evaluate whether an operation would be permitted\n")
	fmt.Printf("  version             Show version information\n")
	fmt.Printf("  help                Show this help message\n\n")
	fmt.Printf("Examples:\n")
	fmt.Printf("  vellum-trust discover\n")
	fmt.Printf("  vellum-trust trust approve -root ./plugins/acme-linter -capabilities execute-hooks acme-linter\n")
	fmt.Printf("  vellum-trust check -plugin acme-linter -operation execute-hook -root ./plugins/acme-linter\n")
	fmt.Printf("\nUse 'vellum-trust <command> -h' for more information about a command.\n")
}

func showVersion() {
	fmt.Printf("vellum-trust - Plugin Trust & Capability Subsystem CLI\n")
	fmt.Printf("Version: %s\n", Version)
	fmt.Printf("Commit:  %s\n", Commit)
	fmt.Printf("Built:   %s\n", BuildTime)
}

// defaultRoots builds the priority-ordered discovery.Root list from
// pkg/paths' default search order (project, user, global, builtin),
// optionally prepending extra roots the caller names as highest-priority.
func defaultRoots(extra string) []discovery.Root {
	var roots []discovery.Root

	if extra != "" {
		for _, p := range strings.Split(extra, ",") {
			p = strings.TrimSpace(p)
			if p != "" {
				roots = append(roots, discovery.Root{Path: p, Source: capability.SourceProject})
			}
		}
	}

	defaults := paths.DefaultPaths().DiscoveryRoots
	sources := []capability.Source{capability.SourceProject, capability.SourceUser, capability.SourceGlobal, capability.SourceBuiltin}
	for i, p := range defaults {
		src := capability.SourceBuiltin
		if i < len(sources) {
			src = sources[i]
		}
		roots = append(roots, discovery.Root{Path: p, Source: src})
	}

	return roots
}

func runDiscover(args []string) {
	fs := flag.NewFlagSet("discover", flag.ExitOnError)
	rootsFlag := fs.String("roots", "", "comma-separated additional search roots, highest priority first")
	jsonOut := fs.Bool("json", false, "emit JSON output")
	fs.Parse(args)

	logger := logging.New("vellum-trust")
	scanner := discovery.New(logger)
	found := scanner.Discover(defaultRoots(*rootsFlag))

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(found)
		return
	}

	if len(found) == 0 {
		fmt.Println("No plugin candidates found.")
		return
	}
	fmt.Printf("Discovered %d plugin candidate(s):\n\n", len(found))
	for _, p := range found {
		fmt.Printf("  %-24s source=%-8s root=%s\n", p.Name, p.Source, p.RootPath)
	}
}

func openStore(path string) (*trust.Store, error) {
	logger := logging.New("vellum-trust")
	m := metrics.NewProductionMetrics(logger)
	s := trust.New(path, logger, m)
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

func runTrust(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "trust requires a subcommand: list, show, approve, revoke")
		os.Exit(1)
	}

	switch args[0] {
	case "list":
		runTrustList(args[1:])
	case "show":
		runTrustShow(args[1:])
	case "approve":
		runTrustApprove(args[1:])
	case "revoke":
		runTrustRevoke(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown trust subcommand: %s\n", args[0])
		os.Exit(1)
	}
}

func runTrustList(args []string) {
	fs := flag.NewFlagSet("trust list", flag.ExitOnError)
	storePath := fs.String("store", paths.DefaultPaths().GetTrustStoreFile(), "path to the trust store file")
	fs.Parse(args)

	s, err := openStore(*storePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	entries := s.List()
	if len(entries) == 0 {
		fmt.Println("No trusted plugins.")
		return
	}
	for _, e := range entries {
		hash := e.ContentHash
		if len(hash) > 12 {
			hash = hash[:12]
		}
		fmt.Printf("  %-24s level=%-8s hash=%s... caps=%v\n", e.PluginName, e.TrustLevel, hash, e.Capabilities)
	}
}

func runTrustShow(args []string) {
	fs := flag.NewFlagSet("trust show", flag.ExitOnError)
	storePath := fs.String("store", paths.DefaultPaths().GetTrustStoreFile(), "path to the trust store file")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "trust show requires a plugin name")
		os.Exit(1)
	}
	name := fs.Arg(0)

	s, err := openStore(*storePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	entry, ok := s.Get(name)
	if !ok {
		fmt.Printf("No trust entry for %s\n", name)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(entry)
}

func runTrustApprove(args []string) {
	fs := flag.NewFlagSet("trust approve", flag.ExitOnError)
	storePath := fs.String("store", paths.DefaultPaths().GetTrustStoreFile(), "path to the trust store file")
	rootPath := fs.String("root", "", "path to the plugin's root directory, fingerprinted at approval time")
	level := fs.String("level", string(capability.TrustFull), "trust level: full, limited, none")
	capsFlag := fs.String("capabilities", "", "comma-separated capability list")
	versionFlag := fs.String("version", "0.0.0", "plugin version recorded with this approval")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "trust approve requires a plugin name")
		os.Exit(1)
	}
	name := fs.Arg(0)
	if *rootPath == "" {
		fmt.Fprintln(os.Stderr, "trust approve requires -root")
		os.Exit(1)
	}

	lvl := capability.TrustLevel(*level)
	if !capability.ValidTrustLevel(lvl) {
		fmt.Fprintf(os.Stderr, "Error: invalid trust level %q\n", *level)
		os.Exit(1)
	}

	caps, err := parseCapabilities(*capsFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	declared, err := discovery.DeclaredFiles(*rootPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to read manifest at %s: %v\n", *rootPath, err)
		os.Exit(1)
	}

	logger := logging.New("vellum-trust")
	fingerprinter := identity.New(logger)
	manifest := identity.Manifest{RelativePaths: declared}
	fp, err := fingerprinter.Fingerprint(context.Background(), *rootPath, manifest)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to fingerprint %s: %v\n", *rootPath, err)
		os.Exit(1)
	}

	s, err := openStore(*storePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := s.Set(trust.TrustedPlugin{
		PluginName:   name,
		Version:      *versionFlag,
		TrustedAt:    time.Now().UTC().Format(time.RFC3339),
		Capabilities: caps,
		ContentHash:  string(fp),
		TrustLevel:   lvl,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := s.Save(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to save trust store: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Approved %s at trust level %s (fingerprint %s)\n", name, lvl, fp)
}

func runTrustRevoke(args []string) {
	fs := flag.NewFlagSet("trust revoke", flag.ExitOnError)
	storePath := fs.String("store", paths.DefaultPaths().GetTrustStoreFile(), "path to the trust store file")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "trust revoke requires a plugin name")
		os.Exit(1)
	}
	name := fs.Arg(0)

	s, err := openStore(*storePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	existed := s.Delete(name)
	if err := s.Save(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to save trust store: %v\n", err)
		os.Exit(1)
	}

	if existed {
		fmt.Printf("Revoked trust for %s\n", name)
	} else {
		fmt.Printf("No trust entry for %s\n", name)
	}
}

func parseCapabilities(s string) ([]capability.Capability, error) {
	if s == "" {
		return nil, nil
	}
	var caps []capability.Capability
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		c, err := capability.Parse(part)
		if err != nil {
			return nil, err
		}
		caps = append(caps, c)
	}
	return caps, nil
}

func runCheck(args []string) {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	storePath := fs.String("store", paths.DefaultPaths().GetTrustStoreFile(), "path to the trust store file")
	plugin := fs.String("plugin", "", "plugin name")
	operation := fs.String("operation", "", "operation kind: execute-hook, spawn-subagent, read-file, write-file, network-request, start-mcp-server")
	rootPath := fs.String("root", "", "plugin root to fingerprint (mutually exclusive with -fingerprint)")
	fingerprintFlag := fs.String("fingerprint", "", "precomputed content fingerprint")
	fs.Parse(args)

	if *plugin == "" || *operation == "" {
		fmt.Fprintln(os.Stderr, "check requires -plugin and -operation")
		os.Exit(1)
	}
	if *rootPath == "" && *fingerprintFlag == "" {
		fmt.Fprintln(os.Stderr, "check requires either -root or -fingerprint")
		os.Exit(1)
	}
	if *rootPath != "" && *fingerprintFlag != "" {
		fmt.Fprintln(os.Stderr, "check accepts only one of -root and -fingerprint")
		os.Exit(1)
	}

	logger := logging.New("vellum-trust")

	fp := *fingerprintFlag
	if fp == "" {
		declared, err := discovery.DeclaredFiles(*rootPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to read manifest at %s: %v\n", *rootPath, err)
			os.Exit(1)
		}

		fingerprinter := identity.New(logger)
		manifest := identity.Manifest{RelativePaths: declared}
		computed, err := fingerprinter.Fingerprint(context.Background(), *rootPath, manifest)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to fingerprint %s: %v\n", *rootPath, err)
			os.Exit(1)
		}
		fp = string(computed)
	}

	s, err := openStore(*storePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	entry, ok := s.Get(*plugin)
	pEntry := permission.Entry{
		ContentHash:  entry.ContentHash,
		TrustLevel:   entry.TrustLevel,
		Capabilities: entry.Capabilities,
	}
	decision := permission.Check(pEntry, ok, fp, capability.Operation{Kind: capability.OperationKind(*operation)})

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(decision)

	if !decision.Allowed {
		os.Exit(1)
	}
}
