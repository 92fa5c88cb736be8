package blobstream

// TransferGuard lets a host apply admission control to inbound transfers
// before a Receiver is allocated for them — e.g. capping total concurrent
// transfers or rejecting an oversized octetCount. Check is called with the
// START_TRANSFER parameters before the Receiver exists; End is called once
// the transfer's engine has returned, win or lose.
type TransferGuard interface {
	Check(transferID uint16, octetCount int, fixedChunkSize int) bool
	End(transferID uint16)
}
