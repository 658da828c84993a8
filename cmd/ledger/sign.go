package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"swapstream/internal/model"
	"swapstream/internal/streams"
)

func newHashStreamCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hash-stream",
		Short: "Compute the consent digest for a stream update",
		RunE:  runHashStream,
	}
	addDigestFlags(cmd)
	return cmd
}

func newSignUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sign-update",
		Short: "Sign a stream update digest with a private key",
		RunE:  runSignUpdate,
	}
	addDigestFlags(cmd)
	cmd.Flags().String("key", "", "hex-encoded secp256k1 private key")
	return cmd
}

func addDigestFlags(cmd *cobra.Command) {
	cmd.Flags().String("ledger-address", defaultStreamAddress, "stream ledger address")
	cmd.Flags().Uint64("stream-id", 0, "stream identifier")
	cmd.Flags().String("rate", "", "payment per block")
	cmd.Flags().Uint64("start-block", 0, "new start block")
	cmd.Flags().Uint64("end-block", 0, "new end block")
}

func runHashStream(cmd *cobra.Command, _ []string) error {
	digest, err := computeDigest(cmd)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), digest.Hex())
	return nil
}

func runSignUpdate(cmd *cobra.Command, _ []string) error {
	digest, err := computeDigest(cmd)
	if err != nil {
		return err
	}

	keyHex, _ := cmd.Flags().GetString("key")
	if keyHex == "" {
		return fmt.Errorf("key is required")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(keyHex, "0x"))
	if err != nil {
		return fmt.Errorf("parse key: %w", err)
	}

	signature, err := streams.SignUpdate(key, digest)
	if err != nil {
		return fmt.Errorf("sign digest: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "0x"+hex.EncodeToString(signature))
	return nil
}

func computeDigest(cmd *cobra.Command) (digest common.Hash, err error) {
	ledgerHex, _ := cmd.Flags().GetString("ledger-address")
	ledgerAddr, err := parseAddressFlag("ledger-address", ledgerHex)
	if err != nil {
		return digest, err
	}

	streamID, _ := cmd.Flags().GetUint64("stream-id")
	start, _ := cmd.Flags().GetUint64("start-block")
	end, _ := cmd.Flags().GetUint64("end-block")
	rateStr, _ := cmd.Flags().GetString("rate")

	rate, err := model.ParseAmount(rateStr)
	if err != nil {
		return digest, fmt.Errorf("rate: %w", err)
	}

	tf := streams.Timeframe{StartBlock: start, EndBlock: end}
	return streams.UpdateDigest(ledgerAddr, streamID, rate, tf), nil
}
