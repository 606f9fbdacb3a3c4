// Package release 把工作区文件转换为不可变的发布快照。
//
// 一次发布经历 Validating → Staging → Registering → Committing → Committed；
// 任何一步失败都会进入 RolledBack，暂存目录被完整删除，releases/ 下不会出现半成品。
package release
