package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/etnz/debinspect/deb"
	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
)

const flagKeyring = "keyring"

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate FILE.dsc...",
		Short: "check the files and checksums listed by source packages",
		Args:  cobra.MinimumNArgs(1),
		RunE:  validate,
	}
	cmd.Flags().String(flagKeyring, "", "armored OpenPGP keyring used to verify signatures")
	_ = cmd.MarkFlagFilename(flagKeyring, ".asc", ".gpg")
	return cmd
}

func readKeyring(path string) (openpgp.EntityList, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	keyring, err := openpgp.ReadArmoredKeyRing(f)
	if err != nil {
		return nil, fmt.Errorf("reading keyring %s: %w", path, err)
	}
	return keyring, nil
}

func validate(cmd *cobra.Command, args []string) error {
	log := logr.FromContextOrDiscard(cmd.Context())
	out := cmd.OutOrStdout()

	keyringPath, _ := cmd.Flags().GetString(flagKeyring)
	if keyringPath == "" {
		keyringPath = configFrom(cmd.Context()).Keyring
	}
	var opts []deb.Option
	if keyringPath != "" {
		keyring, err := readKeyring(keyringPath)
		if err != nil {
			return err
		}
		log.V(1).Info("loaded keyring", "path", keyringPath, "keys", len(keyring))
		opts = append(opts, deb.WithKeyring(keyring))
	}

	failed := 0
	for _, path := range args {
		dsc, err := deb.OpenDsc(cmd.Context(), path, opts...)
		if err != nil {
			return err
		}
		err = dsc.Validate()
		if err == nil {
			fmt.Fprintf(out, "%s: OK\n", path)
			continue
		}
		failed++
		if err := writeFailure(out, path, err); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d source packages failed validation", failed, len(args))
	}
	return nil
}

// writeFailure reports why a source package failed validation.
func writeFailure(w io.Writer, path string, err error) error {
	var missing *deb.MissingFileError
	var bad *deb.BadChecksumsError
	switch {
	case errors.As(err, &missing):
		for _, p := range missing.Paths {
			fmt.Fprintf(w, "%s: missing %s\n", path, p)
		}
	case errors.As(err, &bad):
		for _, algo := range bad.Corrections.Algorithms() {
			files := bad.Corrections[algo]
			names := make([]string, 0, len(files))
			for name := range files {
				names = append(names, name)
			}
			slices.Sort(names)
			for _, name := range names {
				fmt.Fprintf(w, "%s: bad %s %s, actual %s\n", path, algo, name, files[name])
			}
		}
	default:
		_, werr := fmt.Fprintf(w, "%s: %v\n", path, err)
		return werr
	}
	return nil
}
