package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/internship-portal/internal/db"
	"github.com/jonathan/internship-portal/internal/types"
	"github.com/spf13/cobra"
)

const diagTimeout = 30 * time.Second

var diagStudent string

var diagCmd = &cobra.Command{
	Use:   "diag",
	Short: "Operator diagnostics",
	Long:  "Inspect notification delivery and row-level security policies of the portal database.",
}

var diagNotificationsCmd = &cobra.Command{
	Use:   "notifications",
	Short: "Inspect a student's notifications",
}

var diagCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Count a student's notifications",
	Args:  cobra.NoArgs,
	RunE:  runDiagCount,
}

var diagSendCmd = &cobra.Command{
	Use:   "send",
	Short: "Write a test notification for a student",
	Long:  "Inserts a test notification for --student and prints the count before and after, to verify that inserts are permitted.",
	Args:  cobra.NoArgs,
	RunE:  runDiagSend,
}

var diagPoliciesCmd = &cobra.Command{
	Use:   "policies [table]",
	Short: "List row-level security policies",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDiagPolicies,
}

func init() {
	diagNotificationsCmd.PersistentFlags().StringVar(&diagStudent, "student", "", "Student ID (required)")
	if err := diagNotificationsCmd.MarkPersistentFlagRequired("student"); err != nil {
		panic(fmt.Sprintf("failed to mark student flag as required: %v", err))
	}
	diagNotificationsCmd.AddCommand(diagCountCmd, diagSendCmd)

	diagCmd.AddCommand(diagNotificationsCmd, diagPoliciesCmd)
	rootCmd.AddCommand(diagCmd)
}

func parseStudent() (uuid.UUID, error) {
	id, err := uuid.Parse(diagStudent)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid student ID %q: %w", diagStudent, err)
	}
	return id, nil
}

func runDiagCount(cmd *cobra.Command, _ []string) error {
	studentID, err := parseStudent()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), diagTimeout)
	defer cancel()
	database, err := openDatabase(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	count, err := database.CountNotifications(ctx, studentID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d notifications for %s\n", count, studentID)
	return nil
}

func runDiagSend(cmd *cobra.Command, _ []string) error {
	studentID, err := parseStudent()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), diagTimeout)
	defer cancel()
	database, err := openDatabase(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	before, err := database.CountNotifications(ctx, studentID)
	if err != nil {
		return err
	}
	if err := database.CreateNotification(ctx, testNotification(studentID)); err != nil {
		return fmt.Errorf("test notification was refused: %w", err)
	}
	after, err := database.CountNotifications(ctx, studentID)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "notifications: %d -> %d\n", before, after)
	if after <= before {
		return fmt.Errorf("insert succeeded but the notification is not visible")
	}
	return nil
}

func testNotification(studentID uuid.UUID) types.Notification {
	return types.Notification{
		StudentID: studentID,
		Type:      "test",
		Title:     "Notificación de prueba",
		Body:      "Si ves este mensaje, las notificaciones funcionan correctamente.",
	}
}

func runDiagPolicies(cmd *cobra.Command, args []string) error {
	var table string
	if len(args) == 1 {
		table = args[0]
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), diagTimeout)
	defer cancel()
	database, err := openDatabase(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	policies, err := database.ListPolicies(ctx, table)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if policies == nil {
		policies = []db.Policy{}
	}
	return enc.Encode(policies)
}
