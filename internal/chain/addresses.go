package chain

// Well-known native programs and sysvars.
var (
	SystemProgramID          = PublicKey{}
	ComputeBudgetProgramID   = MustPublicKey("ComputeBudget111111111111111111111111111111")
	TokenProgramID           = MustPublicKey("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	AssociatedTokenProgramID = MustPublicKey("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")

	SysvarClockID        = MustPublicKey("SysvarC1ock11111111111111111111111111111111")
	SysvarSlotHashesID   = MustPublicKey("SysvarS1otHashes111111111111111111111111111")
	SysvarInstructionsID = MustPublicKey("Sysvar1nstructions1111111111111111111111111")
)

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL = 1_000_000_000
