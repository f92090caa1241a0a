package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mirkobrombin/go-doorlock/v1/auth"
)

func newPasswdCommand(v *viper.Viper, p prompter) *cobra.Command {
	return &cobra.Command{
		Use:   "passwd",
		Short: "Set the door password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			if _, err := loadConfigFile(v); err != nil {
				return err
			}
			path := v.GetString("password-file")
			pass, err := promptNewPassword(p)
			if err != nil {
				return err
			}
			if err := auth.WritePasswordFile(path, pass); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "password hash written to %s\n", path)
			return nil
		},
	}
}
