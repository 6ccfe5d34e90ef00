package predeploys

import "github.com/ethereum/go-ethereum/common"

// L2ToL1MessagePasser records withdrawals on every OP-Stack L2.
const L2ToL1MessagePasser = "0x4200000000000000000000000000000000000016"

var L2ToL1MessagePasserAddr = common.HexToAddress(L2ToL1MessagePasser)
