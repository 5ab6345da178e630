package client

import "context"

// SmsClient 短信供应商客户端
type SmsClient interface {
	Send(ctx context.Context, req SendReq) (SendResp, error)
}

type SendReq struct {
	PhoneNumbers   []string
	SignName       string
	TemplateId     string
	TemplateParams []string
}

type SendResp struct {
	RequestId    string
	PhoneNumbers map[string]SendStatus
}

// SendStatus 单个号码的发送结果
type SendStatus struct {
	Code     string
	Message  string
	SerialNo string
}
