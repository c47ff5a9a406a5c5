package tx

import (
	"errors"
	"fmt"

	"github.com/weisyn/ptx-sdk-go/types"
	"github.com/weisyn/ptx-sdk-go/wallet"
)

// SignedTransaction 已签名交易：payload 与签名绑定后不可修改
type SignedTransaction struct {
	payload    *Payload
	signatures []wallet.Signature
}

// Sign 使用密钥库为 payload 的发送者签名（交易 intent）
func Sign(ks wallet.KeyStore, p *Payload) (*SignedTransaction, error) {
	if p == nil {
		return nil, types.NewError(types.KindBuild, types.CodeInvalidPayload, "payload is nil")
	}

	sig, err := ks.Sign(p.Sender(), p.Bytes(), wallet.TransactionIntent())
	if err != nil {
		if errors.Is(err, wallet.ErrNoSuchKey) {
			return nil, types.Wrap(types.ErrUnknownAddress, err, "no key for sender %s", p.Sender())
		}
		return nil, types.Wrap(types.ErrKeyStoreFailure, err, "sign for %s", p.Sender())
	}

	signed, err := NewSignedTransaction(p, sig)
	if err != nil {
		return nil, types.Wrap(types.ErrKeyStoreFailure, err, "key store returned an unusable signature")
	}
	return signed, nil
}

// NewSignedTransaction 绑定外部签名（如远程签名服务的结果），所有签名必须通过校验
func NewSignedTransaction(p *Payload, sigs ...wallet.Signature) (*SignedTransaction, error) {
	if p == nil {
		return nil, types.NewError(types.KindBuild, types.CodeInvalidPayload, "payload is nil")
	}
	if len(sigs) == 0 {
		return nil, fmt.Errorf("transaction %s has no signatures", p.Digest())
	}
	s := &SignedTransaction{payload: p}
	for _, sig := range sigs {
		s.signatures = append(s.signatures, append(wallet.Signature(nil), sig...))
	}
	if err := s.Verify(); err != nil {
		return nil, err
	}
	return s, nil
}

// Verify 校验每个签名都覆盖 payload 字节，且其中有发送者的签名
func (s *SignedTransaction) Verify() error {
	senderSigned := false
	msg := s.payload.Bytes()
	for i, sig := range s.signatures {
		if err := wallet.VerifySignature(sig, msg, wallet.TransactionIntent()); err != nil {
			return fmt.Errorf("signature %d: %w", i, err)
		}
		signer, err := sig.Signer()
		if err != nil {
			return fmt.Errorf("signature %d: %w", i, err)
		}
		if signer == s.payload.Sender() {
			senderSigned = true
		}
	}
	if !senderSigned {
		return fmt.Errorf("no signature from sender %s", s.payload.Sender())
	}
	return nil
}

// Payload 被签名的交易
func (s *SignedTransaction) Payload() *Payload { return s.payload }

// Signatures 签名副本
func (s *SignedTransaction) Signatures() []wallet.Signature {
	out := make([]wallet.Signature, len(s.signatures))
	for i, sig := range s.signatures {
		out[i] = append(wallet.Signature(nil), sig...)
	}
	return out
}

// Digest 交易摘要
func (s *SignedTransaction) Digest() types.Digest { return s.payload.Digest() }
