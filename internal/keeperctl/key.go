package keeperctl

import (
	"bufio"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmitrijs2005/datakeeper/internal/cryptox"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// isTerminal is a test seam for term.IsTerminal.
var isTerminal = term.IsTerminal

// NewKeyCommand groups key subcommands.
func NewKeyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Key ring helpers",
	}
	cmd.AddCommand(newKeyDeriveCommand(rootOpts))
	return cmd
}

func newKeyDeriveCommand(rootOpts *RootOptions) *cobra.Command {
	var salt string
	var version int

	cmd := &cobra.Command{
		Use:   "derive",
		Short: "Derive a master key secret from a passphrase",
		Long: `Derive a master key from a passphrase with Argon2id and print it base64
encoded, ready to be placed in the key_ring section of the server config.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if salt == "" {
				return errors.New("--salt is required")
			}
			passphrase, err := readPassphrase(cmd.InOrStdin(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if len(passphrase) == 0 {
				return errors.New("empty passphrase")
			}

			secret := base64.StdEncoding.EncodeToString(cryptox.DeriveMasterKey(passphrase, []byte(salt)))
			return output(cmd, rootOpts, secret, map[string]any{"version": version, "secret": secret})
		},
	}

	cmd.Flags().StringVar(&salt, "salt", "", "salt for the key derivation")
	cmd.Flags().IntVar(&version, "version", 1, "key version the secret is meant for")

	return cmd
}

// readPassphrase prompts on a terminal without echo, or reads one line from
// piped input.
func readPassphrase(in io.Reader, prompt io.Writer) ([]byte, error) {
	if f, ok := in.(*os.File); ok && isTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, "Passphrase: ")
		p, err := readPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		return p, err
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return []byte(strings.TrimRight(line, "\r\n")), nil
}
