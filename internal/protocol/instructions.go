package protocol

import (
	"github.com/eore-labs/eore-cli/internal/chain"
	"github.com/eore-labs/eore-cli/internal/search"
)

// Instruction discriminators.
const (
	ixMine  = 2
	ixOpen  = 3
	ixReset = 4
)

// Auth tags the transaction with the proof it mines for. It is a noop
// instruction carrying the proof address.
func Auth(proof chain.PublicKey) chain.Instruction {
	data := make([]byte, len(proof))
	copy(data, proof[:])
	return chain.Instruction{ProgramID: NoopProgramID, Data: data}
}

// Open creates the proof account for signer.
func Open(signer, miner, payer chain.PublicKey) chain.Instruction {
	return chain.Instruction{
		ProgramID: ProgramID,
		Accounts: []chain.AccountMeta{
			chain.ReadonlySigner(signer),
			chain.Readonly(miner),
			chain.WritableSigner(payer),
			chain.Writable(ProofAddress(signer)),
			chain.Readonly(chain.SystemProgramID),
			chain.Readonly(chain.SysvarSlotHashesID),
		},
		Data: []byte{ixOpen},
	}
}

// Reset starts a new epoch: it refills the buses and updates the config.
func Reset(signer chain.PublicKey) chain.Instruction {
	accounts := []chain.AccountMeta{chain.WritableSigner(signer)}
	for _, bus := range BusAddresses {
		accounts = append(accounts, chain.Writable(bus))
	}
	accounts = append(accounts,
		chain.Writable(ConfigAddress),
		chain.Writable(MintAddress),
		chain.Writable(TreasuryAddress),
		chain.Writable(TreasuryTokensAddress),
		chain.Readonly(chain.TokenProgramID),
	)
	return chain.Instruction{ProgramID: ProgramID, Accounts: accounts, Data: []byte{ixReset}}
}

// Mine submits a solution for authority's proof through bus. A zero
// boostConfig omits the boost account.
func Mine(signer, authority, bus chain.PublicKey, solution search.Solution, boostConfig chain.PublicKey) chain.Instruction {
	accounts := []chain.AccountMeta{
		chain.WritableSigner(signer),
		chain.Writable(bus),
		chain.Readonly(ConfigAddress),
		chain.Writable(ProofAddress(authority)),
		chain.Readonly(chain.SysvarInstructionsID),
		chain.Readonly(chain.SysvarSlotHashesID),
	}
	if !boostConfig.IsZero() {
		accounts = append(accounts, chain.Readonly(boostConfig))
	}

	data := make([]byte, 0, 1+len(solution.D)+len(solution.N))
	data = append(data, ixMine)
	data = append(data, solution.D[:]...)
	data = append(data, solution.N[:]...)
	return chain.Instruction{ProgramID: ProgramID, Accounts: accounts, Data: data}
}
