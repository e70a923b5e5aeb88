package api

const (
	// PingEndpoint is the endpoint for checking the API status
	PingEndpoint = "/ping"
	// PoolEndpoint is the endpoint for the pool summary
	PoolEndpoint = "/pool"
	// PoolRootEndpoint is the endpoint for the current accumulator root
	PoolRootEndpoint = "/pool/root"
	// PoolProofEndpoint is the endpoint for the inclusion path of a slot
	ProofURLParam     = "index"
	PoolProofEndpoint = "/pool/proof/{" + ProofURLParam + "}"
	// PoolEventsEndpoint is the endpoint for the settled event log
	PoolEventsEndpoint = "/pool/events"
	// DepositsEndpoint is the endpoint for submitting a deposit
	DepositsEndpoint = "/transactions/deposit"
	// WithdrawalsEndpoint is the endpoint for submitting a withdrawal
	WithdrawalsEndpoint = "/transactions/withdraw"
	// TransactionEndpoint is the endpoint for polling a transaction status
	TransactionURLParam = "txId"
	TransactionEndpoint = "/transactions/{" + TransactionURLParam + "}"
)
