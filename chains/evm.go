package chains

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/vitwit/chaindonate/clients"
	"github.com/vitwit/chaindonate/types"
	"github.com/vitwit/chaindonate/utils"
)

const erc20TransferABI = `[{"anonymous":false,"inputs":[
 {"indexed":true,"name":"from","type":"address"},
 {"indexed":true,"name":"to","type":"address"},
 {"indexed":false,"name":"value","type":"uint256"}],
 "name":"Transfer","type":"event"}]`

var (
	erc20ABI      abi.ABI
	transferTopic common.Hash
)

func init() {
	parsed, err := abi.JSON(strings.NewReader(erc20TransferABI))
	if err != nil {
		panic(err)
	}
	erc20ABI = parsed
	transferTopic = parsed.Events["Transfer"].ID
}

// EVMReader is the node surface the EVM family needs. ethclient.Client and
// the simulated backend client both satisfy it.
type EVMReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*gethtypes.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*gethtypes.Transaction, bool, error)
}

type EVM struct {
	base
	reader EVMReader
}

var _ Family = (*EVM)(nil)

func NewEVM(network types.Network, reader EVMReader, timeout time.Duration) *EVM {
	return &EVM{base: base{network: network, timeout: timeout}, reader: reader}
}

// NormalizeTxRef accepts a 32-byte hex hash with or without 0x, or an
// explorer URL ending in one, and returns it lowercased with 0x.
func (e *EVM) NormalizeTxRef(ref string) (string, error) {
	return normalizeEVMTxRef(ref)
}

func normalizeEVMTxRef(ref string) (string, error) {
	h := strings.ToLower(stripExplorerURL(ref))
	h = strings.TrimPrefix(h, "0x")
	if len(h) != 64 || !utils.IsHexString(h) {
		return "", invalidReference(ref, "expected a 0x-prefixed 32-byte hex hash")
	}
	return "0x" + h, nil
}

func (e *EVM) CurrentHeight(ctx context.Context) (uint64, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	head, err := e.reader.BlockNumber(ctx)
	if err != nil {
		return 0, e.networkError("block number", err)
	}
	return head, nil
}

func (e *EVM) Verify(ctx context.Context, req VerifyRequest) (*Evidence, error) {
	expected, err := e.expected(req)
	if err != nil {
		return nil, err
	}
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	hash := common.HexToHash(req.TxHash)
	receipt, err := e.reader.TransactionReceipt(ctx, hash)
	if isNotFound(err) {
		return nil, notFound(e.network, req.TxHash)
	}
	if err != nil {
		return nil, e.networkError("transaction receipt", err)
	}
	if receipt.Status != gethtypes.ReceiptStatusSuccessful {
		return nil, types.NewError(types.ErrTransactionFailed, "transaction %s reverted", req.TxHash)
	}
	if receipt.BlockNumber == nil {
		return nil, types.NewError(types.ErrInsufficientConfirmations, "transaction %s is pending", req.TxHash)
	}
	block := receipt.BlockNumber.Uint64()

	head, err := e.reader.BlockNumber(ctx)
	if err != nil {
		return nil, e.networkError("block number", err)
	}
	confirmations := confirmationsSince(head, block)
	if err := checkConfirmations(e.network, confirmations); err != nil {
		return nil, err
	}
	if err := checkReplayFloor(req.Intent, e.network.NetworkID, block); err != nil {
		return nil, err
	}

	ev := &Evidence{TxHash: req.TxHash, BlockNumber: block, Confirmations: confirmations}
	if req.Asset.IsToken() {
		err = e.tokenTransfer(receipt, req, ev)
	} else {
		err = e.nativeTransfer(ctx, hash, req, ev)
	}
	if err != nil {
		return nil, err
	}

	if err := checkAmount(ev.AmountRaw, expected, req.Asset.IsToken()); err != nil {
		return nil, err
	}
	return ev, nil
}

func (e *EVM) nativeTransfer(ctx context.Context, hash common.Hash, req VerifyRequest, ev *Evidence) error {
	tx, _, err := e.reader.TransactionByHash(ctx, hash)
	if isNotFound(err) {
		return notFound(e.network, req.TxHash)
	}
	if err != nil {
		return e.networkError("transaction by hash", err)
	}
	if tx.To() == nil || !utils.SameEVMAddress(tx.To().Hex(), req.DepositAddress) {
		return types.NewError(types.ErrAddressMismatch, "transaction is not sent to deposit address %s", req.DepositAddress)
	}

	ev.To = tx.To().Hex()
	ev.AmountRaw = new(big.Int).Set(tx.Value())
	if from, err := gethtypes.Sender(gethtypes.LatestSignerForChainID(tx.ChainId()), tx); err == nil {
		ev.From = from.Hex()
	}
	return nil
}

// tokenTransfer sums the contract's Transfer logs paying the deposit address.
func (e *EVM) tokenTransfer(receipt *gethtypes.Receipt, req VerifyRequest, ev *Evidence) error {
	contract := common.HexToAddress(req.Asset.ContractAddress)
	deposit := common.HexToAddress(req.DepositAddress)

	total := new(big.Int)
	matched := false
	for _, lg := range receipt.Logs {
		if lg.Address != contract || len(lg.Topics) != 3 || lg.Topics[0] != transferTopic {
			continue
		}
		to := common.BytesToAddress(lg.Topics[2].Bytes())
		if to != deposit {
			continue
		}
		values, err := erc20ABI.Unpack("Transfer", lg.Data)
		if err != nil || len(values) != 1 {
			continue
		}
		value, ok := values[0].(*big.Int)
		if !ok {
			continue
		}
		total.Add(total, value)
		if !matched {
			ev.From = common.BytesToAddress(lg.Topics[1].Bytes()).Hex()
			matched = true
		}
	}
	if !matched {
		return types.NewError(types.ErrAddressMismatch,
			"no %s Transfer to deposit address %s in transaction", req.Asset.Symbol, req.DepositAddress)
	}

	ev.To = deposit.Hex()
	ev.AmountRaw = total
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, ethereum.NotFound) || errors.Is(err, clients.ErrNotFound)
}
