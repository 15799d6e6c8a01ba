package json

import (
	"io"

	jsoniter "github.com/json-iterator/go"
)

// JSON 统一的 jsoniter 配置实例，与标准库行为兼容
// 目录配置解码、websocket 帧编解码都走这里
var JSON = jsoniter.ConfigCompatibleWithStandardLibrary

// RawMessage 延迟解码的原始 JSON，与 encoding/json.RawMessage 相同
type RawMessage = jsoniter.RawMessage

// Number 保留原始文本的数字，兼容字符串和数值两种写法
type Number = jsoniter.Number

// Marshal 序列化对象为 JSON 字节数组
func Marshal(v interface{}) ([]byte, error) {
	return JSON.Marshal(v)
}

// Unmarshal 反序列化 JSON 字节数组
func Unmarshal(data []byte, v interface{}) error {
	return JSON.Unmarshal(data, v)
}

// UnmarshalFromString 从字符串反序列化，目录库里的配置列是字符串
func UnmarshalFromString(str string, v interface{}) error {
	return JSON.UnmarshalFromString(str, v)
}

// NewDecoder 从 io.Reader 流式解码
func NewDecoder(r io.Reader) *jsoniter.Decoder {
	return JSON.NewDecoder(r)
}
