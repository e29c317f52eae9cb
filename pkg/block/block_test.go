package block

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gochain/radcoin/internal/primitives"
)

func rewardTx(t *testing.T, to primitives.Address) SignedTransaction {
	t.Helper()
	return SignedTransaction{
		Transaction: Transaction{
			Outputs: []TransactionOutput{{Address: to, Amount: RewardAmount}},
		},
	}
}

func signedTransfer(t *testing.T, from *primitives.KeyPair, in TransactionInput, out TransactionOutput) SignedTransaction {
	t.Helper()
	tx := Transaction{Inputs: []TransactionInput{in}, Outputs: []TransactionOutput{out}}
	txHash, err := tx.Hash()
	require.NoError(t, err)
	return SignedTransaction{
		Transaction: tx,
		Signer:      from.Address(),
		Signature:   from.Sign(txHash.Bytes()),
	}
}

func TestTransactionIsReward(t *testing.T) {
	kp, err := primitives.GenerateKeyPair()
	require.NoError(t, err)

	reward := rewardTx(t, kp.Address())
	assert.True(t, reward.Transaction.IsReward())

	transfer := signedTransfer(t, kp, TransactionInput{}, TransactionOutput{Address: kp.Address(), Amount: primitives.NewAmount(1)})
	assert.False(t, transfer.Transaction.IsReward())
}

func TestSignedTransactionVerifySignature(t *testing.T) {
	kp, err := primitives.GenerateKeyPair()
	require.NoError(t, err)

	st := signedTransfer(t, kp, TransactionInput{}, TransactionOutput{Address: kp.Address(), Amount: primitives.NewAmount(1)})
	assert.NoError(t, st.VerifySignature())

	st.Transaction.Outputs[0].Amount = primitives.NewAmount(999)
	assert.ErrorIs(t, st.VerifySignature(), ErrBadSignature)
}

func TestRewardTransactionSkipsSignatureCheck(t *testing.T) {
	kp, err := primitives.GenerateKeyPair()
	require.NoError(t, err)
	reward := rewardTx(t, kp.Address())
	assert.NoError(t, reward.VerifySignature())
}

func TestBlockHashIsDeterministic(t *testing.T) {
	kp, err := primitives.GenerateKeyPair()
	require.NoError(t, err)
	b := Block{
		BlockNum:     1,
		Difficulty:   2,
		Transactions: []SignedTransaction{rewardTx(t, kp.Address())},
	}
	h1, err := b.Hash()
	require.NoError(t, err)
	h2, err := b.Hash()
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestMiningHashChangesWithEntropy(t *testing.T) {
	kp, err := primitives.GenerateKeyPair()
	require.NoError(t, err)
	b := Block{BlockNum: 1, Transactions: []SignedTransaction{rewardTx(t, kp.Address())}}

	b.MiningEntropy = []byte("a")
	h1, err := b.MiningHash()
	require.NoError(t, err)

	b.MiningEntropy = []byte("b")
	h2, err := b.MiningHash()
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
}

func TestMeetsDifficultyZeroAlwaysPasses(t *testing.T) {
	assert.True(t, MeetsDifficulty(primitives.Hash{0xFF}, 0))
}

func TestMeetsDifficultyChecksLeadingBits(t *testing.T) {
	var h primitives.Hash
	h[0] = 0x00
	h[1] = 0x0F
	assert.True(t, MeetsDifficulty(h, 12))
	assert.False(t, MeetsDifficulty(h, 13))
}

func TestValidateShapeRequiresLeadingReward(t *testing.T) {
	kp, err := primitives.GenerateKeyPair()
	require.NoError(t, err)
	transfer := signedTransfer(t, kp, TransactionInput{}, TransactionOutput{Address: kp.Address(), Amount: primitives.NewAmount(1)})

	b := Block{BlockNum: 1, Transactions: []SignedTransaction{transfer}}
	assert.ErrorIs(t, b.ValidateShape(), ErrInvalidBlock)
}

func TestValidateShapeRejectsWrongRewardAmount(t *testing.T) {
	kp, err := primitives.GenerateKeyPair()
	require.NoError(t, err)
	bad := SignedTransaction{Transaction: Transaction{Outputs: []TransactionOutput{{Address: kp.Address(), Amount: primitives.NewAmount(1)}}}}

	b := Block{BlockNum: 1, Transactions: []SignedTransaction{bad}}
	assert.ErrorIs(t, b.ValidateShape(), ErrInvalidBlock)
}

func TestValidateShapeRejectsSecondReward(t *testing.T) {
	kp, err := primitives.GenerateKeyPair()
	require.NoError(t, err)
	b := Block{BlockNum: 1, Transactions: []SignedTransaction{rewardTx(t, kp.Address()), rewardTx(t, kp.Address())}}
	assert.ErrorIs(t, b.ValidateShape(), ErrInvalidBlock)
}

func TestValidateShapeAcceptsRewardPlusTransfer(t *testing.T) {
	kp, err := primitives.GenerateKeyPair()
	require.NoError(t, err)
	transfer := signedTransfer(t, kp, TransactionInput{TransactionHash: primitives.HashBytes([]byte("prev")), OutputIndex: 0}, TransactionOutput{Address: kp.Address(), Amount: primitives.NewAmount(1)})
	b := Block{BlockNum: 1, Transactions: []SignedTransaction{rewardTx(t, kp.Address()), transfer}}
	assert.NoError(t, b.ValidateShape())
}

func TestValidateShapeRejectsNonEmptyGenesis(t *testing.T) {
	kp, err := primitives.GenerateKeyPair()
	require.NoError(t, err)
	b := Block{BlockNum: 0, Transactions: []SignedTransaction{rewardTx(t, kp.Address())}}
	assert.ErrorIs(t, b.ValidateShape(), ErrInvalidBlock)
}

func TestValidateShapeAcceptsGenesis(t *testing.T) {
	assert.NoError(t, GenesisBlock.ValidateShape())
}
