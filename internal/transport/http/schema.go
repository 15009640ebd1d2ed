package httpapi

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// decide 请求的结构化校验：字段名/类型错误在进聚合器之前就被拒掉。
const decideSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["asset_pair", "timeframe", "opinions"],
  "properties": {
    "asset_pair": {"type": "string", "minLength": 1},
    "timeframe": {"type": "string", "minLength": 1},
    "snapshot_time": {"type": ["number", "string"]},
    "market_regime": {"type": "string", "enum": ["", "trending", "ranging", "volatile"]},
    "opinions": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["action"],
        "properties": {
          "provider_id": {"type": "string"},
          "provider": {"type": "string"},
          "model": {"type": "string"},
          "action": {"type": "string"},
          "confidence": {"type": ["number", "string"]},
          "rationale": {"type": "string"},
          "reasoning": {"type": "string"},
          "timestamp": {"type": ["number", "string"]}
        }
      }
    },
    "candles": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["high", "low", "close"],
        "properties": {
          "open_time": {"type": ["number", "string"]},
          "open": {"type": "number"},
          "high": {"type": "number"},
          "low": {"type": "number"},
          "close": {"type": "number"},
          "volume": {"type": "number"}
        }
      }
    },
    "risk": {
      "type": "object",
      "properties": {
        "position_size_usd": {"type": "number"},
        "entry_price": {"type": "number"},
        "stop_loss": {"type": "number"},
        "take_profit": {"type": "number"},
        "data_age_seconds": {"type": "number"},
        "data_stale": {"type": "boolean"}
      }
    }
  }
}`

var decideSchema = jsonschema.MustCompileString("decide.json", decideSchemaJSON)

// validateDecideBody 校验 decide 请求体，返回适合直接回给调用方的错误。
func validateDecideBody(body []byte) error {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("请求体不是合法 JSON: %w", err)
	}
	if err := decideSchema.Validate(doc); err != nil {
		return fmt.Errorf("请求体校验失败: %w", err)
	}
	return nil
}
