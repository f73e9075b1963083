package solana

// SignatureInfo from getSignaturesForAddress.
type SignatureInfo struct {
	Signature string
	Slot      int64
	BlockTime *int64
	Err       interface{}
}

// SignaturesOpts defines optional pagination parameters for getSignaturesForAddress.
type SignaturesOpts struct {
	Before string // Start searching backwards from this signature
	Until  string // Search until this signature
	Limit  int    // Maximum number of signatures to return
}

// TokenBalance is one entry of preTokenBalances/postTokenBalances.
type TokenBalance struct {
	AccountIndex int
	Mint         string
	Owner        string
	Amount       uint64 // raw amount in base units
	Decimals     uint8
}

// LoadedAddresses are the address-lookup-table keys of a versioned transaction.
type LoadedAddresses struct {
	Writable []string
	Readonly []string
}
