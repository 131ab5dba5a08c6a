package chain

// LedgerChannelABI is the interface of the ledger channel manager contract.
const LedgerChannelABI = `[
  {"type":"function","name":"createChannel","stateMutability":"payable","outputs":[],"inputs":[
    {"name":"_lcID","type":"bytes32"},{"name":"_partyI","type":"address"},{"name":"_confirmTime","type":"uint256"}]},
  {"type":"function","name":"joinChannel","stateMutability":"payable","outputs":[],"inputs":[
    {"name":"_lcID","type":"bytes32"}]},
  {"type":"function","name":"deposit","stateMutability":"payable","outputs":[],"inputs":[
    {"name":"_lcID","type":"bytes32"},{"name":"recipient","type":"address"}]},
  {"type":"function","name":"consensusCloseChannel","stateMutability":"nonpayable","outputs":[],"inputs":[
    {"name":"_lcID","type":"bytes32"},{"name":"_sequence","type":"uint256"},
    {"name":"_balanceA","type":"uint256"},{"name":"_balanceI","type":"uint256"},
    {"name":"_sigA","type":"bytes"},{"name":"_sigI","type":"bytes"}]},
  {"type":"function","name":"updateLCstate","stateMutability":"nonpayable","outputs":[],"inputs":[
    {"name":"_lcID","type":"bytes32"},{"name":"updateParams","type":"uint256[4]"},
    {"name":"_VCroot","type":"bytes32"},{"name":"_sigA","type":"bytes"},{"name":"_sigI","type":"bytes"},
    {"name":"_challenge","type":"bool"}]},
  {"type":"function","name":"initVCstate","stateMutability":"nonpayable","outputs":[],"inputs":[
    {"name":"_lcID","type":"bytes32"},{"name":"_vcID","type":"bytes32"},{"name":"_proof","type":"bytes"},
    {"name":"_sequence","type":"uint256"},{"name":"_partyA","type":"address"},{"name":"_partyB","type":"address"},
    {"name":"_bond","type":"uint256"},{"name":"_balanceA","type":"uint256"},{"name":"_balanceB","type":"uint256"},
    {"name":"sigA","type":"bytes"}]},
  {"type":"function","name":"settleVC","stateMutability":"nonpayable","outputs":[],"inputs":[
    {"name":"_lcID","type":"bytes32"},{"name":"_vcID","type":"bytes32"},{"name":"updateSeq","type":"uint256"},
    {"name":"_partyA","type":"address"},{"name":"_partyB","type":"address"},
    {"name":"updateBal","type":"uint256[2]"},{"name":"sigA","type":"bytes"}]},
  {"type":"function","name":"closeVirtualChannel","stateMutability":"nonpayable","outputs":[],"inputs":[
    {"name":"_lcID","type":"bytes32"},{"name":"_vcID","type":"bytes32"}]},
  {"type":"function","name":"byzantineCloseChannel","stateMutability":"nonpayable","outputs":[],"inputs":[
    {"name":"_lcID","type":"bytes32"}]},
  {"type":"function","name":"LCOpenTimeout","stateMutability":"nonpayable","outputs":[],"inputs":[
    {"name":"_lcID","type":"bytes32"}]}
]`

const (
	methodCreateChannel         = "createChannel"
	methodJoinChannel           = "joinChannel"
	methodDeposit               = "deposit"
	methodConsensusClose        = "consensusCloseChannel"
	methodUpdateLCState         = "updateLCstate"
	methodInitVCState           = "initVCstate"
	methodSettleVC              = "settleVC"
	methodCloseVirtualChannel   = "closeVirtualChannel"
	methodByzantineCloseChannel = "byzantineCloseChannel"
	methodLCOpenTimeout         = "LCOpenTimeout"
)
