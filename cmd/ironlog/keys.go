package main

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/ironlog/internal/jwt"
)

func newKeysCmd() *cobra.Command {
	keysCmd := &cobra.Command{
		Use:   "keys",
		Short: "Claves de firma Ed25519",
	}

	var out, kid string
	genCmd := &cobra.Command{
		Use:   "generate",
		Short: "Genera una clave nueva en PEM (PKCS#8) e imprime su JWKS",
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				return fmt.Errorf("--out es requerido")
			}
			ks, err := jwt.GenerateKeySet(kid)
			if err != nil {
				return err
			}
			if err := ks.WritePEM(out); err != nil {
				return err
			}
			var pretty bytes.Buffer
			if err := json.Indent(&pretty, ks.JWKSJSON(), "", "  "); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "clave escrita en %s (kid=%s)\n", out, ks.KID)
			fmt.Fprintln(cmd.OutOrStdout(), pretty.String())
			return nil
		},
	}
	genCmd.Flags().StringVar(&out, "out", "", "archivo PEM de salida")
	genCmd.Flags().StringVar(&kid, "kid", "ironlog-1", "key id")

	var in string
	jwksCmd := &cobra.Command{
		Use:   "jwks",
		Short: "Imprime el JWKS público de una clave PEM existente",
		RunE: func(cmd *cobra.Command, args []string) error {
			ks, err := jwt.LoadKeySetPEM(in, kid)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(ks.JWKSJSON()))
			return nil
		},
	}
	jwksCmd.Flags().StringVar(&in, "in", "", "archivo PEM")
	jwksCmd.Flags().StringVar(&kid, "kid", "ironlog-1", "key id")
	_ = jwksCmd.MarkFlagRequired("in")

	keysCmd.AddCommand(genCmd, jwksCmd)
	return keysCmd
}
