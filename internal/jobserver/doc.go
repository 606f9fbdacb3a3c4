// Package jobserver 是发布登记服务（job-server）的 HTTP 客户端。
//
// 所有调用都发送 Authorization、OS-User 与 Accept 头；上游返回的响应头在回传给
// 调用方之前会去掉逐跳字段、Server 与 Content-Length，并追加 Via 标记。
package jobserver
