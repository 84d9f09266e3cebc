// Package txpipe implements the core of a client-side transaction dispatch
// pipeline for EVM-style account-based chains: nonce allocation, raw
// transaction building, submission through an optional external signer,
// receipt polling and mempool-aware status resolution.
//
// The package deliberately knows nothing about ABI encoding, node
// connectivity, or configuration loading; those are injected through the
// ContractCatalog and NodeClient interfaces so callers can swap in generated
// bindings, a real JSON-RPC client, or test doubles without touching the
// pipeline itself.
package txpipe
