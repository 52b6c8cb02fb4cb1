// Package datum encodes escrow state for the on-chain validator.
//
// The package has three layers:
//
//   - Data: a minimal Plutus data model (Constr, Int, Bytes, List) with a
//     CBOR codec matching cardano-serialization-lib output byte for byte,
//     plus the detailed JSON schema for display.
//   - NodeState: the workflow position marker. NewNodeState canonicalizes
//     its sets so that equal positions always produce equal bytes.
//   - Datum: the InitEscrow and ActiveEscrow shapes and the transitions
//     between them (PromoteToActive, Advance), plus the redeemers that
//     accompany each spend.
//
// Decode dispatches on the constructor index and requires the exact field
// count of the selected shape:
//
//	d, err := datum.Decode(utxo.Datum)
//	switch v := d.(type) {
//	case datum.InitEscrow:
//	    // listed, waiting for the buyer
//	case datum.ActiveEscrow:
//	    // running at v.NodeState.Current
//	}
//
// Round-tripping is exact: Decode(Encode(x)) yields x for every datum built
// through this package.
package datum
