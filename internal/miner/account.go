package miner

import (
	"context"
	"errors"

	"github.com/eore-labs/eore-cli/internal/chain"
	"github.com/eore-labs/eore-cli/internal/protocol"
)

// Account summarizes an authority's balances.
type Account struct {
	Authority chain.PublicKey
	// Lamports is the authority's SOL balance.
	Lamports uint64
	// Tokens is the authority's token account balance, zero if it has none.
	Tokens uint64
	// Proof is nil when the authority has never opened one.
	Proof *protocol.Proof
}

// LookupAccount reads the authority's SOL balance, token balance and proof.
func LookupAccount(ctx context.Context, c Chain, authority chain.PublicKey) (*Account, error) {
	acct := &Account{Authority: authority}

	lamports, err := c.GetBalance(ctx, authority)
	if err != nil {
		return nil, err
	}
	acct.Lamports = lamports

	ata, err := chain.AssociatedTokenAddress(authority, protocol.MintAddress)
	if err != nil {
		return nil, err
	}
	infos, err := c.GetMultipleAccounts(ctx, []chain.PublicKey{ata, protocol.ProofAddress(authority)})
	if err != nil {
		return nil, err
	}
	if len(infos) != 2 {
		return nil, errors.New("unexpected account count")
	}
	if infos[0] != nil {
		if acct.Tokens, err = protocol.DecodeTokenAmount(infos[0].Data); err != nil {
			return nil, err
		}
	}
	if infos[1] != nil {
		if acct.Proof, err = protocol.DecodeProof(infos[1].Data); err != nil {
			return nil, err
		}
	}
	return acct, nil
}
