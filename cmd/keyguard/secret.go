package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/benaskins/keyguard/internal/api"
	"github.com/benaskins/keyguard/internal/keychain"
)

var (
	secretKind       string
	secretNoPresence bool
	secretAccessible string
	useDaemon        bool
)

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Manage secrets",
}

var secretSetCmd = &cobra.Command{
	Use:   "set <key> [value]",
	Short: "Store a secret",
	Long:  "Store a secret. If value is omitted, reads from stdin (useful for piping).",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		kind, err := keychain.ParseValueKind(secretKind)
		if err != nil {
			return err
		}

		var raw []byte
		if len(args) == 2 {
			raw = []byte(args[1])
		} else if raw, err = readSecretInput(kind); err != nil {
			return err
		}

		if useDaemon {
			var req api.SecretRequest
			if req, err = secretRequest(kind, raw); err != nil {
				return err
			}
			err = apiDo(socketPath(), http.MethodPut, secretPath(key), req, nil)
		} else {
			err = withStore(func(s *keychain.AuditedStore) error {
				v, err := valueOf(kind, raw)
				if err != nil {
					return err
				}
				return s.Set(key, v, currentPolicy())
			})
		}
		if err != nil {
			return err
		}
		fmt.Printf("Secret %q stored\n", key)
		return nil
	},
}

var secretGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Retrieve a secret",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		kind, err := keychain.ParseValueKind(secretKind)
		if err != nil {
			return err
		}

		if useDaemon {
			var resp api.SecretResponse
			err := apiGet(socketPath(), secretPath(key)+"?kind="+string(kind), &resp)
			var ae *apiError
			if errors.As(err, &ae) && ae.StatusCode == http.StatusNotFound {
				return fmt.Errorf("secret %q not found", key)
			}
			if err != nil {
				return err
			}
			return printSecret(resp)
		}

		return withStore(func(s *keychain.AuditedStore) error {
			resp := api.SecretResponse{Key: key, Kind: string(kind)}
			var found bool
			switch kind {
			case keychain.KindText:
				var text string
				text, found, err = s.FetchText(key)
				resp.Text = &text
			case keychain.KindFlag:
				var flag bool
				flag, found, err = s.LookupFlag(key)
				resp.Flag = &flag
			default:
				resp.Data, found, err = s.Fetch(key)
			}
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("secret %q not found", key)
			}
			return printSecret(resp)
		})
	},
}

var secretExistsCmd = &cobra.Command{
	Use:   "exists <key>",
	Short: "Check whether a secret is stored, without reading it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		var found bool
		if useDaemon {
			var resp map[string]bool
			if err := apiGet(socketPath(), "/v1/exists/"+escapeKey(key), &resp); err != nil {
				return err
			}
			found = resp["exists"]
		} else {
			err := withStore(func(s *keychain.AuditedStore) error {
				var err error
				found, err = s.Exists(key)
				return err
			})
			if err != nil {
				return err
			}
		}
		fmt.Println(found)
		if !found {
			os.Exit(1)
		}
		return nil
	},
}

var secretListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List all secrets",
	Aliases: []string{"ls"},
	RunE: func(cmd *cobra.Command, args []string) error {
		var keys []string
		if useDaemon {
			var resp map[string][]string
			if err := apiGet(socketPath(), "/v1/secrets", &resp); err != nil {
				return err
			}
			keys = resp["keys"]
		} else {
			err := withStore(func(s *keychain.AuditedStore) error {
				keys = s.List()
				return nil
			})
			if err != nil {
				return err
			}
		}

		if len(keys) == 0 {
			fmt.Println("No secrets stored")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "KEY")
		for _, k := range keys {
			fmt.Fprintln(w, k)
		}
		w.Flush()
		return nil
	},
}

var secretDeleteCmd = &cobra.Command{
	Use:     "delete <key>",
	Short:   "Remove a secret",
	Aliases: []string{"rm"},
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		var err error
		if useDaemon {
			err = apiDo(socketPath(), http.MethodDelete, secretPath(key), nil, nil)
		} else {
			err = withStore(func(s *keychain.AuditedStore) error {
				return s.Delete(key)
			})
		}
		if err != nil {
			return err
		}
		fmt.Printf("Secret %q deleted\n", key)
		return nil
	},
}

func init() {
	secretCmd.PersistentFlags().BoolVar(&useDaemon, "daemon", false, "Go through the running keyguard daemon")
	for _, c := range []*cobra.Command{secretSetCmd, secretGetCmd} {
		c.Flags().StringVar(&secretKind, "kind", "text", "Value kind: bytes, text or flag")
	}
	secretSetCmd.Flags().BoolVar(&secretNoPresence, "no-presence", false, "Do not require user presence to read the secret")
	secretSetCmd.Flags().StringVar(&secretAccessible, "accessible", "", "Accessibility class (default: when passcode set, this device only)")

	secretCmd.AddCommand(secretSetCmd)
	secretCmd.AddCommand(secretGetCmd)
	secretCmd.AddCommand(secretExistsCmd)
	secretCmd.AddCommand(secretListCmd)
	secretCmd.AddCommand(secretDeleteCmd)
	rootCmd.AddCommand(secretCmd)
}

func withStore(fn func(*keychain.AuditedStore) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, closeFn, err := openStore(cfg, "cli")
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(store)
}

func socketPath() string {
	cfg, err := loadConfig()
	if err != nil {
		return defaultSocketPath()
	}
	return cfg.Socket
}

func secretPath(key string) string {
	return "/v1/secrets/" + escapeKey(key)
}

// escapeKey escapes each path segment so keys may contain slashes.
func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

func currentPolicy() keychain.AccessPolicy {
	p := keychain.AccessPolicy{Accessible: keychain.Accessibility(secretAccessible)}
	if !secretNoPresence {
		p.Flags = keychain.UserPresence
	}
	return p
}

func readSecretInput(kind keychain.ValueKind) ([]byte, error) {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Print("Enter secret value: ")
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return nil, fmt.Errorf("reading password: %w", err)
		}
		fmt.Println()
		return b, nil
	}
	b, err := io.ReadAll(os.Stdin)
	if err != nil {
		return nil, fmt.Errorf("reading stdin: %w", err)
	}
	if kind != keychain.KindBytes {
		b = []byte(strings.TrimRight(string(b), "\n"))
	}
	return b, nil
}

func valueOf(kind keychain.ValueKind, raw []byte) (keychain.Value, error) {
	switch kind {
	case keychain.KindText:
		return keychain.Text(raw), nil
	case keychain.KindFlag:
		b, err := strconv.ParseBool(string(raw))
		if err != nil {
			return nil, fmt.Errorf("flag value: %w", err)
		}
		return keychain.Flag(b), nil
	default:
		return keychain.Bytes(raw), nil
	}
}

func secretRequest(kind keychain.ValueKind, raw []byte) (api.SecretRequest, error) {
	req := api.SecretRequest{Kind: string(kind)}
	switch kind {
	case keychain.KindText:
		text := string(raw)
		req.Text = &text
	case keychain.KindFlag:
		b, err := strconv.ParseBool(string(raw))
		if err != nil {
			return req, fmt.Errorf("flag value: %w", err)
		}
		req.Flag = &b
	default:
		req.Data = raw
	}
	p := currentPolicy()
	req.Policy = &api.PolicySpec{Accessible: string(p.Accessible), UserPresence: p.RequiresUserPresence()}
	return req, nil
}

func printSecret(resp api.SecretResponse) error {
	switch {
	case resp.Text != nil:
		fmt.Println(*resp.Text)
	case resp.Flag != nil:
		fmt.Println(*resp.Flag)
	default:
		_, err := os.Stdout.Write(resp.Data)
		return err
	}
	return nil
}
