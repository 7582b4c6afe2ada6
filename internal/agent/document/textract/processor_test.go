package textract

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/sheetscan/internal/agent/document"
	"github.com/feichai0017/sheetscan/pkg/logger"
	"github.com/feichai0017/sheetscan/pkg/retry"
)

func block(kind types.BlockType, id, text string, top float32, children ...string) types.Block {
	b := types.Block{
		BlockType:  kind,
		Id:         aws.String(id),
		Confidence: aws.Float32(99),
		Page:       aws.Int32(1),
		Geometry:   &types.Geometry{BoundingBox: &types.BoundingBox{Top: top}},
	}
	if text != "" {
		b.Text = aws.String(text)
	}
	if len(children) > 0 {
		b.Relationships = []types.Relationship{{Type: types.RelationshipTypeChild, Ids: children}}
	}
	return b
}

func cell(id string, row, col int32, words ...string) types.Block {
	b := block(types.BlockTypeCell, id, "", 0, words...)
	b.RowIndex = aws.Int32(row)
	b.ColumnIndex = aws.Int32(col)
	return b
}

func receiptBlocks() []types.Block {
	return []types.Block{
		block(types.BlockTypeLine, "l1", "Corner Cafe", 0.05, "w1", "w2"),
		block(types.BlockTypeLine, "l2", "Item Qty", 0.20, "w3", "w4"),
		block(types.BlockTypeLine, "l3", "Tea 2", 0.25, "w5", "w6"),
		block(types.BlockTypeLine, "l4", "Thank you", 0.60, "w7", "w8"),
		block(types.BlockTypeWord, "w1", "Corner", 0.05),
		block(types.BlockTypeWord, "w2", "Cafe", 0.05),
		block(types.BlockTypeWord, "w3", "Item", 0.20),
		block(types.BlockTypeWord, "w4", "Qty", 0.20),
		block(types.BlockTypeWord, "w5", "Tea", 0.25),
		block(types.BlockTypeWord, "w6", "2", 0.25),
		block(types.BlockTypeWord, "w7", "Thank", 0.60),
		block(types.BlockTypeWord, "w8", "you", 0.60),
		block(types.BlockTypeTable, "t1", "", 0.19, "c1", "c2", "c3", "c4"),
		cell("c1", 1, 1, "w3"),
		cell("c2", 1, 2, "w4"),
		cell("c3", 2, 1, "w5"),
		cell("c4", 2, 2, "w6"),
	}
}

func TestRenderPlacesTableInline(t *testing.T) {
	got := Render(receiptBlocks(), 50)

	assert.Equal(t, "Corner Cafe\n| Item | Qty |\n| Tea | 2 |\nThank you", got)
}

func TestRenderSkipsLowConfidenceLines(t *testing.T) {
	blocks := []types.Block{
		block(types.BlockTypeLine, "l1", "clear", 0.1),
		block(types.BlockTypeLine, "l2", "smudge", 0.2),
	}
	blocks[1].Confidence = aws.Float32(20)

	assert.Equal(t, "clear", Render(blocks, 50))
}

type fakeClient struct {
	analyzeErr error
	analyzed   int
	detected   int
}

func (f *fakeClient) AnalyzeDocument(context.Context, *textract.AnalyzeDocumentInput, ...func(*textract.Options)) (*textract.AnalyzeDocumentOutput, error) {
	f.analyzed++
	if f.analyzeErr != nil {
		return nil, f.analyzeErr
	}
	return &textract.AnalyzeDocumentOutput{Blocks: receiptBlocks()}, nil
}

func (f *fakeClient) DetectDocumentText(context.Context, *textract.DetectDocumentTextInput, ...func(*textract.Options)) (*textract.DetectDocumentTextOutput, error) {
	f.detected++
	return &textract.DetectDocumentTextOutput{Blocks: []types.Block{
		block(types.BlockTypeLine, "l1", "plain text", 0.1),
	}}, nil
}

func TestRecognizeUsesTablesWhenEnabled(t *testing.T) {
	client := &fakeClient{}
	p := NewWithClient(client, &Config{EnableTable: true, MinConfidence: 50}, logger.NewTestLogger())

	text, err := p.Recognize(context.Background(), document.Input{Data: []byte("img"), MimeType: "image/png"})

	require.NoError(t, err)
	assert.Contains(t, text, "| Tea | 2 |")
	assert.Equal(t, 1, client.analyzed)
	assert.Equal(t, 0, client.detected)
}

func TestRecognizeDetectsTextWhenTablesDisabled(t *testing.T) {
	client := &fakeClient{}
	p := NewWithClient(client, &Config{}, logger.NewTestLogger())

	text, err := p.Recognize(context.Background(), document.Input{Data: []byte("img")})

	require.NoError(t, err)
	assert.Equal(t, "plain text", text)
	assert.Equal(t, 1, client.detected)
}

func TestRecognizeMarksThrottling(t *testing.T) {
	client := &fakeClient{analyzeErr: &smithy.GenericAPIError{Code: "ThrottlingException", Message: "slow down"}}
	p := NewWithClient(client, &Config{EnableTable: true}, logger.NewTestLogger())

	_, err := p.Recognize(context.Background(), document.Input{})
	assert.True(t, retry.IsRateLimited(err))

	client.analyzeErr = &smithy.GenericAPIError{Code: "InvalidParameterException", Message: "bad"}
	_, err = p.Recognize(context.Background(), document.Input{})
	assert.False(t, retry.IsRateLimited(err))
	assert.Error(t, err)
}

func TestCanProcess(t *testing.T) {
	p := NewWithClient(&fakeClient{}, &Config{}, logger.NewTestLogger())
	assert.True(t, p.CanProcess("application/pdf"))
	assert.True(t, p.CanProcess("IMAGE/PNG"))
	assert.False(t, p.CanProcess("image/gif"))
	assert.NoError(t, p.Close())
}
