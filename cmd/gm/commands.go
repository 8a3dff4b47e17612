package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/and161185/gigmarket/internal/apiclient"
	"github.com/and161185/gigmarket/internal/config"
	"github.com/and161185/gigmarket/internal/model"
)

const (
	pathRegister = "/api/auth/register"
	pathLogin    = "/api/auth/login"
	pathLogout   = "/api/auth/logout"
	pathMe       = "/api/users/me"
)

// sessionResponse is what register and login answer with.
type sessionResponse struct {
	AccessToken  string     `json:"accessToken"`
	RefreshToken string     `json:"refreshToken"`
	User         model.User `json:"user"`
}

var errUnusableSession = errors.New("server returned an unusable session")

func (a *app) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.errw)
	return fs
}

func (a *app) register(ctx context.Context, args []string, stdin io.Reader) error {
	fs := a.flags("register")
	email := fs.String("email", "", "account email")
	pass := fs.String("p", "", "password (- reads it from stdin)")
	role := fs.String("role", "", "client or freelancer")
	name := fs.String("name", "", "display name")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if *email == "" || *pass == "" || *role == "" {
		return fmt.Errorf("%w: register needs -email, -p and -role", errUsage)
	}
	if _, err := model.ParseRole(*role); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	pw, err := readPassword(*pass, stdin)
	if err != nil {
		return err
	}

	var resp sessionResponse
	err = a.api.RequestAnonymous(ctx, pathRegister, &resp,
		apiclient.Method(http.MethodPost),
		apiclient.JSONBody(map[string]string{"email": *email, "password": pw, "role": *role, "name": *name}),
	)
	if err != nil {
		return err
	}
	return a.adopt(resp, "registered")
}

func (a *app) login(ctx context.Context, args []string, stdin io.Reader) error {
	fs := a.flags("login")
	email := fs.String("email", "", "account email")
	pass := fs.String("p", "", "password (- reads it from stdin)")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if *email == "" || *pass == "" {
		return fmt.Errorf("%w: login needs -email and -p", errUsage)
	}
	pw, err := readPassword(*pass, stdin)
	if err != nil {
		return err
	}

	var resp sessionResponse
	err = a.api.RequestAnonymous(ctx, pathLogin, &resp,
		apiclient.Method(http.MethodPost),
		apiclient.JSONBody(map[string]string{"email": *email, "password": pw}),
	)
	if err != nil {
		return err
	}
	return a.adopt(resp, "logged in")
}

// adopt stores a fresh session bundle.
func (a *app) adopt(resp sessionResponse, verb string) error {
	if !a.sess.SetSession(resp.AccessToken, resp.RefreshToken, resp.User) {
		return errUnusableSession
	}
	fmt.Fprintf(a.out, "%s as %s (%s)\n", verb, resp.User.Email, resp.User.Role)
	return nil
}

// logout revokes the refresh token when there is one. The local session is
// cleared even if the server cannot be reached.
func (a *app) logout(ctx context.Context) error {
	if refresh, ok := a.sess.RefreshToken(); ok {
		err := a.api.RequestAnonymous(ctx, pathLogout, nil,
			apiclient.Method(http.MethodPost),
			apiclient.JSONBody(map[string]string{"refreshToken": refresh}),
		)
		if err != nil {
			a.log.Warn("server-side logout failed", zap.Error(err))
		}
	}
	a.sess.ClearSession()
	fmt.Fprintln(a.out, "logged out")
	return nil
}

func (a *app) whoami(ctx context.Context) error {
	var u model.User
	if err := a.sh.RequestJSON(ctx, pathMe, &u); err != nil {
		return err
	}
	return printJSON(a.out, u)
}

type statusView struct {
	LoggedIn      bool       `json:"loggedIn"`
	Email         string     `json:"email,omitempty"`
	Role          model.Role `json:"role,omitempty"`
	Name          string     `json:"name,omitempty"`
	AccessExpires *time.Time `json:"accessExpires,omitempty"`
	Expired       bool       `json:"expired"`
	Refreshable   bool       `json:"refreshable"`
}

// status reports the stored session without touching the network.
func (a *app) status() error {
	var v statusView
	v.LoggedIn = a.sess.HasSession()
	if u, ok := a.sess.CurrentUser(); ok {
		v.Email, v.Role, v.Name = u.Email, u.Role, u.DisplayName
	}
	if tok, ok := a.sess.AccessToken(); ok {
		val := a.sess.Validator()
		if exp, ok := val.ExpiryTime(tok); ok {
			exp = exp.UTC()
			v.AccessExpires = &exp
		}
		v.Expired = val.IsExpired(tok)
	}
	_, v.Refreshable = a.sess.RefreshToken()
	return printJSON(a.out, v)
}

func (a *app) refresh(ctx context.Context) error {
	if err := a.api.Refresh(ctx); err != nil {
		a.sh.HandleError(err)
		return err
	}
	tok, _ := a.sess.AccessToken()
	if exp, ok := a.sess.Validator().ExpiryTime(tok); ok {
		fmt.Fprintf(a.out, "access token refreshed, expires %s\n", exp.UTC().Format(time.RFC3339))
		return nil
	}
	fmt.Fprintln(a.out, "access token refreshed")
	return nil
}

// get performs an arbitrary authenticated call and pretty-prints the JSON answer.
func (a *app) get(ctx context.Context, args []string) error {
	fs := a.flags("get")
	method := fs.String("X", http.MethodGet, "HTTP method")
	data := fs.String("d", "", "JSON request body")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: get needs exactly one path", errUsage)
	}
	opts := []apiclient.RequestOption{apiclient.Method(strings.ToUpper(*method))}
	if *data != "" {
		if !json.Valid([]byte(*data)) {
			return fmt.Errorf("%w: -d is not valid JSON", errUsage)
		}
		opts = append(opts, apiclient.RawBody("application/json", []byte(*data)))
	}

	raw, err := a.sh.Request(ctx, fs.Arg(0), opts...)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		return nil
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err = buf.WriteTo(a.out)
	return err
}

// readPassword returns p, or the first line of stdin when p is "-".
func readPassword(p string, stdin io.Reader) (string, error) {
	if p != "-" {
		return p, nil
	}
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", fmt.Errorf("%w: empty password on stdin", errUsage)
	}
	return line, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// config prints the effective settings, or persists them with -init so later
// runs pick up the same flags without repeating them.
func (a *app) config(args []string, path string) error {
	fs := a.flags("config")
	write := fs.Bool("init", false, "write the effective settings to the config file")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if *write {
		if err := a.cfg.Save(path); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		fmt.Fprintf(a.out, "wrote %s\n", path)
		return nil
	}
	return printConfig(a.out, a.cfg)
}

func printConfig(w io.Writer, cfg *config.Client) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return enc.Close()
}
