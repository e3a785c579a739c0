// Copyright (c) AgentPipe Authors.
// Licensed under the MIT License.

/*
包 session 为编排器提供会话快照持久化。

同一个会话 ID 的多次运行共享状态：运行开始时加载快照，运行结束时保存最终
状态。快照以 JSON 编码存储，加载时整数还原为 int64、小数还原为 float64，
因此各后端返回的值类型一致。

# 后端

  - MemoryStore：进程内存，适合测试与单次 CLI 调用。
  - FileStore：每个会话一个 JSON 文件，原子替换写入。
  - RedisStore：go-redis 客户端，支持键前缀、TTL 与 TLS。
  - SQLStore：GORM，支持 postgres、mysql 与 sqlite，带连接池配置与
    死锁重试。
  - MongoStore：mongo-driver v2，每个会话一个文档。

Open 根据 Config 选择后端。
*/
package session
