package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/culturemaker/cmk-api/internal/adapters/gateway"
	"github.com/culturemaker/cmk-api/internal/data"
	domainauth "github.com/culturemaker/cmk-api/internal/domain/auth"
	"github.com/culturemaker/cmk-api/internal/ports"
	"github.com/culturemaker/cmk-api/internal/service"
)

const inspectClientID = "culturemaker-admin"

// pathList collects repeated --path flags.
type pathList []string

func (p *pathList) String() string { return strings.Join(*p, ",") }

func (p *pathList) Set(v string) error {
	*p = append(*p, v)
	return nil
}

type resolveOptions struct {
	ID    string
	Email string
	Paths pathList
}

func parseResolveFlags(args []string) (resolveOptions, error) {
	fs := flag.NewFlagSet("resolve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts resolveOptions
	fs.StringVar(&opts.ID, "id", "", "Principal id as issued by the identity provider")
	fs.StringVar(&opts.Email, "email", "", "Principal email; used for the sub-admin email probe")
	fs.Var(&opts.Paths, "path", "Path to check against the resolved session (repeatable)")

	if err := fs.Parse(args); err != nil {
		return resolveOptions{}, err
	}
	if strings.TrimSpace(opts.ID) == "" {
		return resolveOptions{}, errors.New("--id is required")
	}
	return opts, nil
}

// signedOut never signs anyone in; resolve only needs the gateway for orphan sign-out.
type signedOut struct{}

func (signedOut) Verify(context.Context, domainauth.Credentials) (domainauth.Principal, error) {
	return domainauth.Principal{}, domainauth.ErrInvalidCredentials
}

func runResolve(cmdCtx *commandContext, args []string) error {
	opts, err := parseResolveFlags(args)
	if err != nil {
		return err
	}

	return withDatabase(cmdCtx, defaultCommandTimeout, func(ctx context.Context, db *sql.DB) error {
		sess, resolveErr := resolvePrincipal(ctx, cmdCtx, data.NewDirectoryRepo(db), domainauth.Principal{
			ID:    opts.ID,
			Email: domainauth.NormalizeEmail(opts.Email),
		})
		if resolveErr != nil {
			return resolveErr
		}
		return printResolution(cmdCtx.Out, newResolution(sess, sess == nil, opts.Paths))
	})
}

func resolvePrincipal(
	ctx context.Context,
	cmdCtx *commandContext,
	dir ports.Directory,
	p domainauth.Principal,
) (*domainauth.Session, error) {
	gw, err := gateway.New(gateway.Options{Verifier: signedOut{}, ClientID: inspectClientID, Logger: cmdCtx.Logger})
	if err != nil {
		return nil, err
	}
	resolver := service.NewResolver(service.ResolverOptions{
		Directory: dir,
		Gateway:   gw,
		Cache:     service.NewSessionCache(nil, inspectClientID),
		Telemetry: service.Telemetry{Logger: cmdCtx.Logger},
	})
	sess, err := resolver.Resolve(ctx, &p)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", p.ID, err)
	}
	return sess, nil
}

// resolution is what resolve and authorize print. Orphan marks a principal the
// directories do not know, which the resolver signs out.
type resolution struct {
	Session   *domainauth.Session            `json:"session"`
	Orphan    bool                           `json:"orphan,omitempty"`
	Home      string                         `json:"home"`
	Decisions map[string]domainauth.Decision `json:"decisions,omitempty"`
}

func newResolution(sess *domainauth.Session, orphan bool, paths []string) resolution {
	out := resolution{Session: sess, Orphan: orphan, Home: domainauth.Home(sess)}
	if len(paths) > 0 {
		out.Decisions = make(map[string]domainauth.Decision, len(paths))
		for _, p := range paths {
			out.Decisions[p] = domainauth.Navigate(sess, p)
		}
	}
	return out
}

func printResolution(w io.Writer, out resolution) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

type authorizeOptions struct {
	Role   string
	Status string
	Paths  pathList
}

func parseAuthorizeFlags(args []string) (*domainauth.Session, []string, error) {
	fs := flag.NewFlagSet("authorize", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts authorizeOptions
	fs.StringVar(&opts.Role, "role", "", "admin, sub-admin or employee; empty for a signed-out visitor")
	fs.StringVar(&opts.Status, "status", string(domainauth.StatusApproved), "pending, approved or rejected")
	fs.Var(&opts.Paths, "path", "Path to check (repeatable)")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	if len(opts.Paths) == 0 {
		return nil, nil, errors.New("at least one --path is required")
	}
	if opts.Role == "" {
		return nil, opts.Paths, nil
	}

	role, err := domainauth.ParseRole(opts.Role)
	if err != nil {
		return nil, nil, fmt.Errorf("--role: %w", err)
	}
	status, err := domainauth.ParseStatus(opts.Status)
	if err != nil {
		return nil, nil, fmt.Errorf("--status: %w", err)
	}
	return &domainauth.Session{PrincipalID: inspectClientID, Role: role, Status: status}, opts.Paths, nil
}

func runAuthorize(cmdCtx *commandContext, args []string) error {
	sess, paths, err := parseAuthorizeFlags(args)
	if err != nil {
		return err
	}
	return printResolution(cmdCtx.Out, newResolution(sess, false, paths))
}
