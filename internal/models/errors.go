package models

import "errors"

var (
	// ErrInvalidReading 设备消息无法解析
	ErrInvalidReading = errors.New("invalid device reading")
	// ErrMissingDeviceID 设备消息缺少 device_id
	ErrMissingDeviceID = errors.New("device_id is required")
)
