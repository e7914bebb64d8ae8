package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(backupCmd, restoreCmd)

	for _, c := range []*cobra.Command{backupCmd, restoreCmd} {
		c.Flags().StringP("family", "f", "", "Family id (required)")
		c.Flags().String("passphrase", "", "Archive passphrase (default: $BACKUP_PASSPHRASE)")
		c.MarkFlagRequired("family")
	}
	backupCmd.Flags().Bool("list", false, "List existing archives instead of creating one")
	restoreCmd.Flags().String("key", "", "Archive key (default: newest)")
}

func passphrase(cmd *cobra.Command) (string, error) {
	p, _ := cmd.Flags().GetString("passphrase")
	if p == "" {
		p = os.Getenv("BACKUP_PASSPHRASE")
	}
	if p == "" {
		return "", errors.New("a passphrase is required (--passphrase or BACKUP_PASSPHRASE)")
	}
	return p, nil
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Archive an encrypted family snapshot to S3",
	RunE:  runBackup,
}

func runBackup(cmd *cobra.Command, args []string) error {
	familyID, _ := cmd.Flags().GetString("family")
	list, _ := cmd.Flags().GetBool("list")

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if list {
		keys, err := a.srv.Archiver().List(cmd.Context(), familyID)
		if err != nil {
			return err
		}
		for _, k := range keys {
			fmt.Fprintln(cmd.OutOrStdout(), k)
		}
		return nil
	}

	pass, err := passphrase(cmd)
	if err != nil {
		return err
	}
	key, err := a.srv.Archiver().Archive(cmd.Context(), familyID, pass)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), key)
	return nil
}

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Replace a family with an archived snapshot",
	RunE:  runRestore,
}

func runRestore(cmd *cobra.Command, args []string) error {
	familyID, _ := cmd.Flags().GetString("family")
	key, _ := cmd.Flags().GetString("key")

	pass, err := passphrase(cmd)
	if err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	snap, err := a.srv.Archiver().Restore(cmd.Context(), familyID, key, pass)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "restored family %s: %d members, %d transactions\n",
		snap.Family.ID, len(snap.Members), len(snap.Transactions))
	return nil
}
