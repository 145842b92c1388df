package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// client habla con la API HTTP usando un access token de admin.
type client struct {
	BaseURL   string
	Token     string
	OutFormat string // "json" | "text"
	HTTP      *http.Client
}

func (c *client) do(method, path string, body []byte) (int, []byte, error) {
	req, err := http.NewRequest(method, strings.TrimRight(c.BaseURL, "/")+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, b, nil
}

func (c *client) print(w io.Writer, status int, body []byte) {
	if c.OutFormat == "json" {
		var v any
		if json.Unmarshal(body, &v) == nil {
			p, _ := json.MarshalIndent(v, "", "  ")
			fmt.Fprintln(w, string(p))
			return
		}
	}
	if len(body) > 0 {
		fmt.Fprintln(w, string(body))
	} else {
		fmt.Fprintf(w, "status=%d\n", status)
	}
}

func newAdminCmd() *cobra.Command {
	cl := &client{
		BaseURL:   envOr("IRONLOG_URL", "http://localhost:8080"),
		Token:     envOr("IRONLOG_ADMIN_TOKEN", ""),
		OutFormat: envOr("IRONLOG_OUT", "text"),
		HTTP:      &http.Client{Timeout: 30 * time.Second},
	}

	adminCmd := &cobra.Command{
		Use:   "admin",
		Short: "Operaciones administrativas (vía /v1/admin)",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cl.Token == "" {
				return fmt.Errorf("falta token (flag --token o env IRONLOG_ADMIN_TOKEN)")
			}
			return nil
		},
	}
	adminCmd.PersistentFlags().StringVar(&cl.BaseURL, "url", cl.BaseURL, "URL base de la API (env IRONLOG_URL)")
	adminCmd.PersistentFlags().StringVar(&cl.Token, "token", cl.Token, "access token de un admin (env IRONLOG_ADMIN_TOKEN)")
	adminCmd.PersistentFlags().StringVar(&cl.OutFormat, "out", cl.OutFormat, "Formato de salida: json|text")

	revokeCmd := &cobra.Command{
		Use:   "revoke <subject>",
		Short: "Invalida todos los tokens emitidos a un usuario",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := cl.do(http.MethodPost, "/v1/admin/users/"+url.PathEscape(args[0])+"/revoke", nil)
			if err != nil {
				return err
			}
			if status/100 != 2 {
				return fmt.Errorf("revoke falló: status=%d body=%s", status, string(body))
			}
			cl.print(cmd.OutOrStdout(), status, body)
			return nil
		},
	}

	adminCmd.AddCommand(revokeCmd)
	return adminCmd
}
