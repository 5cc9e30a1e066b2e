// Copyright 2014 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package types

import (
	"github.com/sunyihoo/evmsync/common"
	"github.com/sunyihoo/evmsync/common/hexutil"
	"github.com/sunyihoo/evmsync/rlp"
)

// Log represents a contract log event. These events are generated by the LOG opcode and
// stored/indexed by the node.
// Log 表示合约日志事件，由 LOG 操作码生成。
type Log struct {
	// Consensus fields:
	// address of the contract that generated the event
	Address common.Address `json:"address"`
	// list of topics provided by the contract.
	Topics []common.Hash `json:"topics"`
	// supplied by the contract, usually ABI-encoded
	Data hexutil.Bytes `json:"data"`

	// Derived fields. These fields are filled in by the node
	// but not secured by consensus.
	// block in which the transaction was included
	BlockNumber uint64 `json:"blockNumber"`
	// hash of the transaction
	TxHash common.Hash `json:"transactionHash"`
	// index of the transaction in the block
	TxIndex uint `json:"transactionIndex"`
	// hash of the block in which the transaction was included
	BlockHash common.Hash `json:"blockHash"`
	// index of the log in the block
	Index uint `json:"logIndex"`
}

// EncodeRLP encodes the consensus fields of the log.
func (l *Log) EncodeRLP() []byte {
	var topics []byte
	for _, topic := range l.Topics {
		topics = rlp.AppendString(topics, topic[:])
	}
	var payload []byte
	payload = rlp.AppendString(payload, l.Address[:])
	payload = rlp.AppendList(payload, topics)
	payload = rlp.AppendString(payload, l.Data)
	return rlp.AppendList(nil, payload)
}

// decodeLog parses the consensus fields of a log and returns the remaining input.
func decodeLog(b []byte) (*Log, []byte, error) {
	content, rest, err := rlp.SplitList(b)
	if err != nil {
		return nil, b, err
	}
	addr, content, err := rlp.SplitString(content)
	if err != nil {
		return nil, b, err
	}
	topicList, content, err := rlp.SplitList(content)
	if err != nil {
		return nil, b, err
	}
	data, _, err := rlp.SplitString(content)
	if err != nil {
		return nil, b, err
	}
	l := &Log{Address: common.BytesToAddress(addr), Data: common.CopyBytes(data)}
	for len(topicList) > 0 {
		var topic []byte
		if topic, topicList, err = rlp.SplitString(topicList); err != nil {
			return nil, b, err
		}
		l.Topics = append(l.Topics, common.BytesToHash(topic))
	}
	return l, rest, nil
}
