package client

import (
	"context"
	"fmt"

	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/profile"
	sms "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/sms/v20210111"
)

var _ SmsClient = (*TencentClient)(nil)

// TencentClient 腾讯云短信客户端
type TencentClient struct {
	client *sms.Client
	appId  string
}

func (tc *TencentClient) Send(ctx context.Context, req SendReq) (SendResp, error) {
	request := sms.NewSendSmsRequest()
	request.SmsSdkAppId = common.StringPtr(tc.appId)
	request.SignName = common.StringPtr(req.SignName)
	request.TemplateId = common.StringPtr(req.TemplateId)
	request.TemplateParamSet = common.StringPtrs(req.TemplateParams)
	request.PhoneNumberSet = common.StringPtrs(req.PhoneNumbers)

	response, err := tc.client.SendSmsWithContext(ctx, request)
	if err != nil {
		return SendResp{}, fmt.Errorf("[jdelivery] failed to send sms by tencent cloud: %w", err)
	}
	if response.Response == nil {
		return SendResp{}, fmt.Errorf("[jdelivery] tencent cloud sms returned empty response")
	}

	resp := SendResp{
		PhoneNumbers: make(map[string]SendStatus, len(response.Response.SendStatusSet)),
	}
	if response.Response.RequestId != nil {
		resp.RequestId = *response.Response.RequestId
	}
	for _, status := range response.Response.SendStatusSet {
		if status == nil || status.PhoneNumber == nil {
			continue
		}
		resp.PhoneNumbers[*status.PhoneNumber] = SendStatus{
			Code:     deref(status.Code),
			Message:  deref(status.Message),
			SerialNo: deref(status.SerialNo),
		}
	}
	return resp, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func NewTencentClient(secretId, secretKey, region, appId string) (*TencentClient, error) {
	credential := common.NewCredential(secretId, secretKey)
	cpf := profile.NewClientProfile()
	cpf.HttpProfile.Endpoint = "sms.tencentcloudapi.com"

	client, err := sms.NewClient(credential, region, cpf)
	if err != nil {
		return nil, fmt.Errorf("[jdelivery] failed to create tencent cloud sms client: %w", err)
	}
	return &TencentClient{
		client: client,
		appId:  appId,
	}, nil
}
