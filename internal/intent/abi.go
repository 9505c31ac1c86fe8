package intent

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
)

const erc20JSON = `[
 {"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
 {"type":"function","name":"transfer","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
 {"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

const wethJSON = `[
 {"type":"function","name":"deposit","stateMutability":"payable","inputs":[],"outputs":[]},
 {"type":"function","name":"withdraw","stateMutability":"nonpayable","inputs":[{"name":"wad","type":"uint256"}],"outputs":[]}
]`

const erc721JSON = `[
 {"type":"function","name":"safeTransferFrom","stateMutability":"nonpayable","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"tokenId","type":"uint256"}],"outputs":[]}
]`

const erc1155JSON = `[
 {"type":"function","name":"safeTransferFrom","stateMutability":"nonpayable","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"id","type":"uint256"},{"name":"value","type":"uint256"},{"name":"data","type":"bytes"}],"outputs":[]}
]`

var (
	erc20ABI   = mustABI(erc20JSON)
	wethABI    = mustABI(wethJSON)
	erc721ABI  = mustABI(erc721JSON)
	erc1155ABI = mustABI(erc1155JSON)
)

// MaxApproval is the allowance granted when exact approvals are off.
var MaxApproval = new(big.Int).Set(math.MaxBig256)

func mustABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

func packApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	return erc20ABI.Pack("approve", spender, amount)
}

func packTransfer(to common.Address, amount *big.Int) ([]byte, error) {
	return erc20ABI.Pack("transfer", to, amount)
}

func packAllowance(owner, spender common.Address) ([]byte, error) {
	return erc20ABI.Pack("allowance", owner, spender)
}

func unpackAllowance(out []byte) (*big.Int, error) {
	vals, err := erc20ABI.Unpack("allowance", out)
	if err != nil {
		return nil, err
	}
	allowance, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("allowance: unexpected %T", vals[0])
	}
	return allowance, nil
}

func packDeposit() ([]byte, error) {
	return wethABI.Pack("deposit")
}

func packWithdraw(amount *big.Int) ([]byte, error) {
	return wethABI.Pack("withdraw", amount)
}

func packERC721Transfer(from, to common.Address, tokenID *big.Int) ([]byte, error) {
	return erc721ABI.Pack("safeTransferFrom", from, to, tokenID)
}

func packERC1155Transfer(from, to common.Address, id, amount *big.Int) ([]byte, error) {
	return erc1155ABI.Pack("safeTransferFrom", from, to, id, amount, []byte{})
}
